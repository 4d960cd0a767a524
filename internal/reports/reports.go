// Package reports renders document analyses as PDF and request lists as
// CSV.
package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/models"
)

// AnalysisPDF renders the stored results of one document analysis. PII
// values are already masked in storage, so nothing raw reaches the report.
func AnalysisPDF(res *models.AnalysisResults, generatedAt time.Time) ([]byte, error) {
	pdf := NewPDFReport("Document Analysis Report", generatedAt)

	docType := "unknown"
	if res.DocumentType != nil {
		docType = *res.DocumentType
	}
	confidence := "-"
	if res.TypeConfidence != nil {
		confidence = fmt.Sprintf("%.0f%%", *res.TypeConfidence*100)
	}
	pages := "-"
	if res.PageCount != nil {
		pages = strconv.Itoa(*res.PageCount)
	}

	pdf.AddSection("Summary")
	pdf.AddKeyValues([][2]string{
		{"Document", res.DocumentID.String()},
		{"Analysis", res.AnalysisID.String()},
		{"Status", string(res.ProcessingStatus)},
		{"Document type", docType},
		{"Type confidence", confidence},
		{"Pages", pages},
		{"PII items", strconv.Itoa(len(res.DetectedPII))},
		{"Exemptions", strconv.Itoa(len(res.Exemptions))},
	})

	if len(res.DetectedPII) > 0 {
		counts := make(map[string]int)
		for _, p := range res.DetectedPII {
			counts[p.PIIType]++
		}
		pdf.AddSection("PII by Type")
		pdf.AddChart(counts)

		pdf.AddSection("Detected PII and Redactions")
		rows := make([][]string, 0, len(res.DetectedPII))
		for _, p := range res.DetectedPII {
			status, method := "-", "-"
			if p.Suggestion != nil {
				status = string(p.Suggestion.Status)
				method = string(p.Suggestion.RedactionMethod)
			}
			rows = append(rows, []string{
				p.PIIType,
				p.Value,
				strconv.Itoa(p.PageNumber),
				fmt.Sprintf("%.2f", p.Confidence),
				method,
				status,
			})
		}
		pdf.AddTable(
			[]string{"Type", "Value", "Page", "Confidence", "Method", "Status"},
			[]float64{35, 45, 15, 25, 30, 30},
			rows,
		)
	}

	if len(res.Exemptions) > 0 {
		pdf.AddSection("Suggested Exemptions")
		exemptions := append([]models.ExemptionClassification(nil), res.Exemptions...)
		sort.SliceStable(exemptions, func(i, j int) bool {
			return exemptions[i].Confidence > exemptions[j].Confidence
		})
		for _, e := range exemptions {
			pdf.AddParagraph(fmt.Sprintf("%s (%s), confidence %.2f, %s\n%s",
				e.ExemptionName, e.ExemptionType, e.Confidence, e.Status, e.Reasoning))
		}
	}

	return pdf.Output()
}

// RequestSearcher is the part of foia.Requests the CSV export pages
// through.
type RequestSearcher interface {
	Search(ctx context.Context, f models.RequestFilter) (*foia.SearchResult, error)
}

const exportPageSize = 500

var requestHeader = []string{
	"Tracking Number", "Status", "Priority", "Request Type", "Requester Type",
	"Requester", "Organization", "Subject", "Assigned To", "Complexity",
	"Submitted", "Due", "Completed",
}

// ExportRequestsCSV writes every request matching f, ignoring f's paging.
// Requester contact details are omitted for anonymous requests.
func ExportRequestsCSV(ctx context.Context, w io.Writer, src RequestSearcher, f models.RequestFilter) (int, error) {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(requestHeader); err != nil {
		return 0, err
	}

	f.Limit = exportPageSize
	f.Offset = 0
	written := 0
	for {
		page, err := src.Search(ctx, f)
		if err != nil {
			return written, fmt.Errorf("searching requests: %w", err)
		}
		for i := range page.Requests {
			if err := csvWriter.Write(requestRow(&page.Requests[i])); err != nil {
				return written, err
			}
			written++
		}
		if len(page.Requests) < f.Limit || f.Offset+len(page.Requests) >= page.Total {
			break
		}
		f.Offset += len(page.Requests)
	}

	csvWriter.Flush()
	return written, csvWriter.Error()
}

func requestRow(r *models.Request) []string {
	requester, org := r.RequesterName, r.RequesterOrganization
	if r.IsAnonymous {
		requester, org = "anonymous", ""
	}
	assigned := ""
	if r.AssignedTo != nil {
		assigned = *r.AssignedTo
	}
	complexity := ""
	if r.ComplexityScore != nil {
		complexity = strconv.FormatFloat(*r.ComplexityScore, 'f', 2, 64)
	}
	completed := ""
	if r.DateCompleted != nil {
		completed = r.DateCompleted.Format(time.RFC3339)
	}
	return []string{
		r.TrackingNumber,
		string(r.Status),
		string(r.Priority),
		string(r.RequestType),
		string(r.RequesterType),
		requester,
		org,
		r.Subject,
		assigned,
		complexity,
		r.DateSubmitted.Format(time.RFC3339),
		r.DateDue.Format(time.RFC3339),
		completed,
	}
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length || length < 4 {
		return s
	}
	return string(r[:length-3]) + "..."
}
