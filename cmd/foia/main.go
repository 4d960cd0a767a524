// Command foia runs the request and document analyzers on local text
// without a database, for checking the rules against sample files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/doctype"
	"github.com/govworks/foia/internal/exemption"
	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/pii"
	"github.com/govworks/foia/internal/redaction"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: foia <command> [flags]

Commands:
  analyze-request   -text TEXT | -file PATH
  analyze-document  -file PATH [-pages N]
  version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var err error
	switch os.Args[1] {
	case "analyze-request":
		err = analyzeRequest(os.Args[2:], os.Stdout, logger)
	case "analyze-document":
		err = analyzeDocument(os.Args[2:], os.Stdout)
	case "version":
		fmt.Printf("foia v%s (built %s)\n", version, buildTime)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readInput returns text, or the contents of path when text is empty.
// A path of "-" reads stdin.
func readInput(text, path string) (string, error) {
	if text != "" {
		return text, nil
	}
	if path == "" {
		return "", errors.New("one of -text or -file is required")
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func analyzeRequest(args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("analyze-request", flag.ContinueOnError)
	text := fs.String("text", "", "Request text")
	file := fs.String("file", "", "File with the request text, or - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input, err := readInput(*text, *file)
	if err != nil {
		return err
	}

	// No store: nothing is persisted and similar-request search is off.
	architect := foia.NewArchitect(nil, nil, foia.WithLogger(logger))
	analysis, err := architect.AnalyzeRequest(context.Background(), input, foia.RequestOptions{})
	if err != nil {
		return err
	}
	return writeJSON(out, analysis)
}

type documentReport struct {
	DocumentType         doctype.Result             `json:"documentType"`
	PageCount            int                        `json:"pageCount"`
	DetectedPII          []pii.Detection            `json:"detectedPII"`
	Exemptions           []exemption.Classification `json:"exemptions"`
	RedactionSuggestions []redaction.Suggestion     `json:"redactionSuggestions"`
}

func analyzeDocument(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analyze-document", flag.ContinueOnError)
	file := fs.String("file", "", "File with extracted document text, or - for stdin")
	pages := fs.Int("pages", 1, "Page count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input, err := readInput("", *file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(input) == "" {
		return foia.ErrEmptyText
	}

	detections, err := pii.NewDetector(nil).Detect(context.Background(), input, uuid.New())
	if err != nil {
		return err
	}
	if detections == nil {
		detections = []pii.Detection{}
	}

	return writeJSON(out, documentReport{
		DocumentType:         doctype.New().Classify(input),
		PageCount:            max(1, *pages),
		DetectedPII:          detections,
		Exemptions:           exemption.New().Classify(input),
		RedactionSuggestions: redaction.Suggest(detections),
	})
}
