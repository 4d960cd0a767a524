package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/govworks/foia/internal/models"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotifyPIIThreshold    NotificationType = "pii_threshold"
	NotifyOverdueRequests NotificationType = "overdue_requests"
	NotifyJobFailed       NotificationType = "job_failed"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Severity  Severity
	Data      map[string]interface{}
	Timestamp time.Time
}

// Config holds notification configuration
type Config struct {
	// MinPII is the PII count at which a document analysis raises an alert.
	MinPII int
	Slack  SlackConfig
	Email  EmailConfig
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string
	Enabled    bool
}

type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
	Enabled  bool
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles notifications
type Service struct {
	config   Config
	logger   *slog.Logger
	client   *http.Client
	sendMail sendMailFunc
	now      func() time.Time
}

// NewService creates a new notification service
func NewService(config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MinPII <= 0 {
		config.MinPII = 10
	}
	if config.Slack.Username == "" {
		config.Slack.Username = "FOIA Alerts"
	}

	return &Service{
		config:   config,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Enabled reports whether any channel is configured.
func (s *Service) Enabled() bool {
	return s.config.Slack.Enabled || s.config.Email.Enabled
}

// Send sends a notification to all enabled channels
func (s *Service) Send(ctx context.Context, notif *Notification) error {
	var errs []error

	if s.config.Slack.Enabled {
		if err := s.sendSlack(ctx, notif); err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	}

	if s.config.Email.Enabled {
		if err := s.sendEmail(notif); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Publish alerts when a completed document analysis found at least MinPII
// PII items. Other events are ignored.
func (s *Service) Publish(ctx context.Context, event models.AnalysisEvent) error {
	if event.Type != models.EventDocumentAnalyzed || !s.Enabled() {
		return nil
	}
	total := 0
	for _, n := range event.PIICounts {
		total += n
	}
	if total < s.config.MinPII {
		return nil
	}

	severity := SeverityWarning
	if total >= 2*s.config.MinPII {
		severity = SeverityCritical
	}

	data := map[string]interface{}{
		"Analysis":  event.AnalysisID.String(),
		"PII items": total,
		"PII types": piiSummary(event.PIICounts),
	}
	if event.DocumentID != nil {
		data["Document"] = event.DocumentID.String()
	}
	if event.DocumentType != "" {
		data["Document type"] = event.DocumentType
	}
	if len(event.Exemptions) > 0 {
		data["Exemptions"] = strings.Join(event.Exemptions, ", ")
	}

	return s.Send(ctx, &Notification{
		Type:      NotifyPIIThreshold,
		Title:     "Document requires redaction review",
		Message:   fmt.Sprintf("Analysis detected %d PII items, at or above the review threshold of %d.", total, s.config.MinPII),
		Severity:  severity,
		Data:      data,
		Timestamp: event.OccurredAt,
	})
}

// NotifyOverdue sends one digest for requests past their due date.
func (s *Service) NotifyOverdue(ctx context.Context, requests []models.Request) error {
	if len(requests) == 0 || !s.Enabled() {
		return nil
	}
	now := s.now()

	lines := make([]string, 0, len(requests))
	data := make(map[string]interface{}, len(requests))
	for _, r := range requests {
		days := int(now.Sub(r.DateDue).Hours() / 24)
		lines = append(lines, fmt.Sprintf("%s (%s, %d days overdue)", r.TrackingNumber, r.Status, days))
		data[r.TrackingNumber] = fmt.Sprintf("%s, due %s", r.Subject, r.DateDue.Format("2006-01-02"))
	}

	return s.Send(ctx, &Notification{
		Type:      NotifyOverdueRequests,
		Title:     fmt.Sprintf("%d FOIA requests overdue", len(requests)),
		Message:   strings.Join(lines, "\n"),
		Severity:  SeverityCritical,
		Data:      data,
		Timestamp: now,
	})
}

// NotifyJobFailed reports a document job that exhausted its retries.
func (s *Service) NotifyJobFailed(ctx context.Context, documentID, source string, attempts int, lastErr string) error {
	if !s.Enabled() {
		return nil
	}
	return s.Send(ctx, &Notification{
		Type:     NotifyJobFailed,
		Title:    "Document analysis failed",
		Message:  fmt.Sprintf("Document %s could not be analyzed after %d attempts: %s", documentID, attempts, lastErr),
		Severity: SeverityWarning,
		Data: map[string]interface{}{
			"Document": documentID,
			"Source":   source,
		},
		Timestamp: s.now(),
	})
}

func piiSummary(counts map[string]int) string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
	}
	return strings.Join(parts, ", ")
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fallback  string       `json:"fallback,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *Service) sendSlack(ctx context.Context, notif *Notification) error {
	keys := make([]string, 0, len(notif.Data))
	for k := range notif.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]SlackField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, SlackField{Title: k, Value: fmt.Sprint(notif.Data[k]), Short: true})
	}

	msg := SlackMessage{
		Channel:  s.config.Slack.Channel,
		Username: s.config.Slack.Username,
		Attachments: []SlackAttachment{
			{
				Color:     severityColor(notif.Severity),
				Title:     notif.Title,
				Text:      notif.Message,
				Fallback:  fmt.Sprintf("%s: %s", notif.Title, notif.Message),
				Fields:    fields,
				Footer:    "FOIA Records Office",
				Timestamp: notif.Timestamp.Unix(),
			},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Slack.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	s.logger.Info("slack notification sent",
		"type", notif.Type,
		"title", notif.Title)

	return nil
}

func severityColor(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return "#D32F2F"
	case SeverityWarning:
		return "#F57C00"
	default:
		return "#1976D2"
	}
}

func (s *Service) sendEmail(notif *Notification) error {
	subject := fmt.Sprintf("[FOIA] %s", notif.Title)
	body, err := formatEmailBody(notif)
	if err != nil {
		return err
	}

	msg := s.buildEmailMessage(subject, body)

	var auth smtp.Auth
	if s.config.Email.Username != "" {
		auth = smtp.PlainAuth("", s.config.Email.Username, s.config.Email.Password, s.config.Email.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)

	if err := s.sendMail(addr, auth, s.config.Email.From, s.config.Email.To, []byte(msg)); err != nil {
		return err
	}

	s.logger.Info("email notification sent",
		"type", notif.Type,
		"title", notif.Title,
		"recipients", len(s.config.Email.To))

	return nil
}

func (s *Service) buildEmailMessage(subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.Email.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.Email.To, ",")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 8px; }
        .header { padding: 20px; background: {{.Color}}; color: white; border-radius: 8px 8px 0 0; }
        .content { padding: 20px; white-space: pre-line; }
        .data-table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        .data-table td { padding: 8px; border-bottom: 1px solid #eee; }
        .data-table td:first-child { font-weight: bold; width: 30%; }
        .footer { padding: 15px 20px; background: #f9f9f9; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h2 style="margin:0;">{{.Title}}</h2></div>
        <div class="content">
            <p>{{.Message}}</p>
            {{if .Data}}
            <table class="data-table">
                {{range $key, $value := .Data}}
                <tr><td>{{$key}}</td><td>{{$value}}</td></tr>
                {{end}}
            </table>
            {{end}}
        </div>
        <div class="footer">
            <p>Automated notice from the FOIA records office.</p>
            <p>Generated at: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`))

func formatEmailBody(notif *Notification) (string, error) {
	data := map[string]interface{}{
		"Title":     notif.Title,
		"Message":   notif.Message,
		"Color":     template.CSS(severityColor(notif.Severity)),
		"Data":      notif.Data,
		"Timestamp": notif.Timestamp.Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
