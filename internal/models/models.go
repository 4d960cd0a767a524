package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Int64Array is an alias for pq.Int64Array to handle PostgreSQL integer arrays
type Int64Array = pq.Int64Array

type RequestStatus string

const (
	RequestStatusSubmitted         RequestStatus = "submitted"
	RequestStatusAcknowledged      RequestStatus = "acknowledged"
	RequestStatusAssigned          RequestStatus = "assigned"
	RequestStatusInProgress        RequestStatus = "in_progress"
	RequestStatusUnderReview       RequestStatus = "under_review"
	RequestStatusPendingPayment    RequestStatus = "pending_payment"
	RequestStatusReleased          RequestStatus = "released"
	RequestStatusPartiallyReleased RequestStatus = "partially_released"
	RequestStatusDenied            RequestStatus = "denied"
	RequestStatusClosed            RequestStatus = "closed"
)

var requestStatuses = map[RequestStatus]bool{
	RequestStatusSubmitted:         true,
	RequestStatusAcknowledged:      true,
	RequestStatusAssigned:          true,
	RequestStatusInProgress:        true,
	RequestStatusUnderReview:       true,
	RequestStatusPendingPayment:    true,
	RequestStatusReleased:          true,
	RequestStatusPartiallyReleased: true,
	RequestStatusDenied:            true,
	RequestStatusClosed:            true,
}

func (s RequestStatus) Valid() bool {
	return requestStatuses[s]
}

// Terminal reports whether the request no longer counts against its due date.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusReleased || s == RequestStatusClosed || s == RequestStatusDenied
}

// TerminalStatuses lists the statuses that stamp date_completed.
var TerminalStatuses = []RequestStatus{RequestStatusReleased, RequestStatusClosed, RequestStatusDenied}

// CompletedStatuses are the statuses searched for similar historical requests.
var CompletedStatuses = []RequestStatus{RequestStatusReleased, RequestStatusClosed}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type RequesterType string

const (
	RequesterCitizen    RequesterType = "citizen"
	RequesterMedia      RequesterType = "media"
	RequesterAttorney   RequesterType = "attorney"
	RequesterCommercial RequesterType = "commercial"
	RequesterGovernment RequesterType = "government"
	RequesterOther      RequesterType = "other"
)

type RequestType string

const (
	RequestTypeGeneral        RequestType = "general"
	RequestTypePoliceReport   RequestType = "police_report"
	RequestTypeBuildingPermit RequestType = "building_permit"
	RequestTypePersonnel      RequestType = "personnel"
	RequestTypeContracts      RequestType = "contracts"
	RequestTypeMeetings       RequestType = "meetings"
	RequestTypeFinancial      RequestType = "financial"
	RequestTypeOther          RequestType = "other"
)

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

type RedactionStatus string

const (
	RedactionSuggested RedactionStatus = "suggested"
	RedactionApproved  RedactionStatus = "approved"
	RedactionRejected  RedactionStatus = "rejected"
	RedactionApplied   RedactionStatus = "applied"
)

type RedactionMethod string

const (
	RedactionMethodBlackBox RedactionMethod = "black_box"
	RedactionMethodBlur     RedactionMethod = "blur"
	RedactionMethodPixelate RedactionMethod = "pixelate"
	RedactionMethodReplace  RedactionMethod = "replace"
)

type DocumentDisposition string

const (
	DispositionResponsive    DocumentDisposition = "responsive"
	DispositionNonResponsive DocumentDisposition = "non_responsive"
	DispositionDuplicate     DocumentDisposition = "duplicate"
	DispositionPrivileged    DocumentDisposition = "privileged"
	DispositionExempt        DocumentDisposition = "exempt"
)

type DocumentRedactionStatus string

const (
	DocumentRedactionPending     DocumentRedactionStatus = "pending"
	DocumentRedactionInProgress  DocumentRedactionStatus = "in_progress"
	DocumentRedactionCompleted   DocumentRedactionStatus = "completed"
	DocumentRedactionApproved    DocumentRedactionStatus = "approved"
	DocumentRedactionNotRequired DocumentRedactionStatus = "not_required"
)

type TemplateType string

const (
	TemplateAcknowledgment TemplateType = "acknowledgment"
	TemplateExtension      TemplateType = "extension"
	TemplateFeeEstimate    TemplateType = "fee_estimate"
	TemplateFinalResponse  TemplateType = "final_response"
	TemplateDenial         TemplateType = "denial"
	TemplateNoRecords      TemplateType = "no_records"
	TemplateClarification  TemplateType = "clarification_request"
	TemplateCustom         TemplateType = "custom"
)

type ExemptionStatus string

const (
	ExemptionSuggested ExemptionStatus = "suggested"
	ExemptionApproved  ExemptionStatus = "approved"
	ExemptionRejected  ExemptionStatus = "rejected"
)

type ActivityType string

const (
	ActivityRequestCreated    ActivityType = "request_created"
	ActivityRequestUpdated    ActivityType = "request_updated"
	ActivityStatusChange      ActivityType = "status_change"
	ActivityAssignment        ActivityType = "assignment"
	ActivityDocumentUpload    ActivityType = "document_upload"
	ActivityRedactionAdded    ActivityType = "redaction_added"
	ActivityRedactionReviewed ActivityType = "redaction_reviewed"
	ActivityExemptionApplied  ActivityType = "exemption_applied"
	ActivityDeadlineExtended  ActivityType = "deadline_extended"
	ActivityOther             ActivityType = "other"
)

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

type Request struct {
	ID                    uuid.UUID     `json:"id" db:"id"`
	TrackingNumber        string        `json:"trackingNumber" db:"tracking_number"`
	RequesterID           *uuid.UUID    `json:"requesterId,omitempty" db:"requester_id"`
	RequesterName         string        `json:"requesterName" db:"requester_name"`
	RequesterEmail        string        `json:"requesterEmail,omitempty" db:"requester_email"`
	RequesterPhone        string        `json:"requesterPhone,omitempty" db:"requester_phone"`
	RequesterOrganization string        `json:"requesterOrganization,omitempty" db:"requester_organization"`
	RequesterType         RequesterType `json:"requesterType" db:"requester_type"`
	IsAnonymous           bool          `json:"isAnonymous" db:"is_anonymous"`
	RequestType           RequestType   `json:"requestType" db:"request_type"`
	Subject               string        `json:"subject" db:"subject"`
	Description           string        `json:"description" db:"description"`
	DateRangeStart        *time.Time    `json:"dateRangeStart,omitempty" db:"date_range_start"`
	DateRangeEnd          *time.Time    `json:"dateRangeEnd,omitempty" db:"date_range_end"`
	Status                RequestStatus `json:"status" db:"status"`
	Priority              Priority      `json:"priority" db:"priority"`
	AssignedTo            *string       `json:"assignedTo,omitempty" db:"assigned_to"`
	ComplexityScore       *float64      `json:"complexityScore,omitempty" db:"complexity_score"`
	CurrentStep           string        `json:"currentStep,omitempty" db:"current_step"`
	PublicNotes           string        `json:"publicNotes,omitempty" db:"public_notes"`
	DateSubmitted         time.Time     `json:"dateSubmitted" db:"date_submitted"`
	DateAcknowledged      *time.Time    `json:"dateAcknowledged,omitempty" db:"date_acknowledged"`
	DateDue               time.Time     `json:"dateDue" db:"date_due"`
	DateCompleted         *time.Time    `json:"dateCompleted,omitempty" db:"date_completed"`
	CreatedBy             *string       `json:"createdBy,omitempty" db:"created_by"`
	UpdatedBy             *string       `json:"updatedBy,omitempty" db:"updated_by"`
	CreatedAt             time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time     `json:"updatedAt" db:"updated_at"`
}

// RequestStatusView is the public projection returned for tracking-number lookups.
type RequestStatusView struct {
	ID               uuid.UUID     `json:"id"`
	TrackingNumber   string        `json:"trackingNumber"`
	Status           RequestStatus `json:"status"`
	DateSubmitted    time.Time     `json:"dateSubmitted"`
	DateAcknowledged *time.Time    `json:"dateAcknowledged,omitempty"`
	DateDue          time.Time     `json:"dateDue"`
	DateCompleted    *time.Time    `json:"dateCompleted,omitempty"`
	CurrentStep      string        `json:"currentStep,omitempty"`
	PublicNotes      string        `json:"publicNotes,omitempty"`
}

func (r *Request) StatusView() *RequestStatusView {
	return &RequestStatusView{
		ID:               r.ID,
		TrackingNumber:   r.TrackingNumber,
		Status:           r.Status,
		DateSubmitted:    r.DateSubmitted,
		DateAcknowledged: r.DateAcknowledged,
		DateDue:          r.DateDue,
		DateCompleted:    r.DateCompleted,
		CurrentStep:      r.CurrentStep,
		PublicNotes:      r.PublicNotes,
	}
}

type ActivityLog struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	RequestID    *uuid.UUID   `json:"requestId,omitempty" db:"request_id"`
	DocumentID   *uuid.UUID   `json:"documentId,omitempty" db:"document_id"`
	ActivityType ActivityType `json:"activityType" db:"activity_type"`
	Action       string       `json:"action" db:"action"`
	ActorID      *string      `json:"actorId,omitempty" db:"actor_id"`
	ActorName    string       `json:"actorName,omitempty" db:"actor_name"`
	OldValue     string       `json:"oldValue,omitempty" db:"old_value"`
	NewValue     string       `json:"newValue,omitempty" db:"new_value"`
	Metadata     JSONB        `json:"metadata,omitempty" db:"metadata"`
	Timestamp    time.Time    `json:"timestamp" db:"timestamp"`
}

type RequestAnalysis struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	RequestID        *uuid.UUID `json:"requestId,omitempty" db:"request_id"`
	AnalysisType     string     `json:"analysisType" db:"analysis_type"`
	InputText        string     `json:"inputText" db:"input_text"`
	AnalysisResult   JSONB      `json:"analysisResult" db:"analysis_result"`
	ConfidenceScore  float64    `json:"confidenceScore" db:"confidence_score"`
	ModelVersion     string     `json:"modelVersion" db:"model_version"`
	ProcessingTimeMs int64      `json:"processingTimeMs" db:"processing_time_ms"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
}

type ExtractedEntity struct {
	ID             uuid.UUID `json:"id" db:"id"`
	AnalysisID     uuid.UUID `json:"analysisId" db:"analysis_id"`
	EntityType     string    `json:"entityType" db:"entity_type"`
	EntityValue    string    `json:"entityValue" db:"entity_value"`
	StartPosition  int       `json:"startPosition" db:"start_position"`
	EndPosition    int       `json:"endPosition" db:"end_position"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	ContextSnippet string    `json:"contextSnippet" db:"context_snippet"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

type DocumentAnalysis struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	DocumentID       uuid.UUID        `json:"documentId" db:"document_id"`
	DocumentType     *string          `json:"documentType,omitempty" db:"document_type"`
	TypeConfidence   *float64         `json:"typeConfidence,omitempty" db:"type_confidence"`
	PageCount        *int             `json:"pageCount,omitempty" db:"page_count"`
	ProcessingStatus ProcessingStatus `json:"processingStatus" db:"processing_status"`
	Metadata         JSONB            `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time        `json:"updatedAt" db:"updated_at"`
}

// Document is a file attached to a request. Its id is the document id
// the analysis endpoints take.
type Document struct {
	ID               uuid.UUID               `json:"id" db:"id"`
	RequestID        uuid.UUID               `json:"requestId" db:"request_id"`
	Filename         string                  `json:"filename" db:"filename"`
	OriginalFilename string                  `json:"originalFilename" db:"original_filename"`
	FileType         string                  `json:"fileType,omitempty" db:"file_type"`
	FileSize         int64                   `json:"fileSize" db:"file_size"`
	FilePath         string                  `json:"filePath,omitempty" db:"file_path"`
	Disposition      DocumentDisposition     `json:"documentType" db:"disposition"`
	RedactionStatus  DocumentRedactionStatus `json:"redactionStatus" db:"redaction_status"`
	PageCount        *int                    `json:"pageCount,omitempty" db:"page_count"`
	UploadedBy       *string                 `json:"uploadedBy,omitempty" db:"uploaded_by"`
	CreatedAt        time.Time               `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time               `json:"updatedAt" db:"updated_at"`
}

// DocumentRequestRef is the slice of the owning request shown in document lists.
type DocumentRequestRef struct {
	TrackingNumber string        `json:"trackingNumber"`
	Subject        string        `json:"subject"`
	Status         RequestStatus `json:"status"`
}

// DocumentAnalysisRef summarizes a document's analysis in document lists.
type DocumentAnalysisRef struct {
	ID               uuid.UUID        `json:"id"`
	DocumentType     *string          `json:"documentType,omitempty"`
	TypeConfidence   *float64         `json:"typeConfidence,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	Metadata         JSONB            `json:"metadata,omitempty"`
}

// DocumentListItem is a document with its request and, once analyzed,
// its analysis status.
type DocumentListItem struct {
	Document
	Request  DocumentRequestRef   `json:"request"`
	Analysis *DocumentAnalysisRef `json:"analysis"`
}

// Template is a correspondence template for requester letters.
type Template struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	TemplateType TemplateType   `json:"templateType" db:"template_type"`
	Category     string         `json:"category,omitempty" db:"category"`
	Subject      string         `json:"subject" db:"subject"`
	Body         string         `json:"body" db:"body"`
	Variables    pq.StringArray `json:"variables" db:"variables"`
	IsActive     bool           `json:"isActive" db:"is_active"`
	IsDefault    bool           `json:"isDefault" db:"is_default"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// DetectedPII never carries the raw matched text; Value is always masked.
type DetectedPII struct {
	ID          uuid.UUID `json:"id" db:"id"`
	AnalysisID  uuid.UUID `json:"analysisId" db:"analysis_id"`
	PIIType     string    `json:"piiType" db:"pii_type"`
	Value       string    `json:"value" db:"value"`
	PageNumber  int       `json:"pageNumber" db:"page_number"`
	Coordinates JSONB     `json:"coordinates,omitempty" db:"coordinates"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Context     string    `json:"context" db:"context"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type RedactionSuggestion struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	PIIID           uuid.UUID       `json:"piiId" db:"pii_id"`
	Status          RedactionStatus `json:"status" db:"status"`
	RedactionMethod RedactionMethod `json:"redactionMethod" db:"redaction_method"`
	Reason          string          `json:"reason" db:"reason"`
	ReviewedBy      *string         `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time      `json:"reviewedAt,omitempty" db:"reviewed_at"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

type ExemptionClassification struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	AnalysisID     uuid.UUID       `json:"analysisId" db:"analysis_id"`
	ExemptionType  string          `json:"exemptionType" db:"exemption_type"`
	ExemptionName  string          `json:"exemptionName" db:"exemption_name"`
	Confidence     float64         `json:"confidence" db:"confidence"`
	Reasoning      string          `json:"reasoning" db:"reasoning"`
	PageReferences Int64Array      `json:"pageReferences" db:"page_references"`
	Status         ExemptionStatus `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// PIIWithSuggestion pairs a detected item with its redaction suggestion for result views.
type PIIWithSuggestion struct {
	DetectedPII
	Suggestion *RedactionSuggestion `json:"suggestion,omitempty"`
}

// AnalysisResults is the stored view of a document's analysis.
type AnalysisResults struct {
	AnalysisID       uuid.UUID                 `json:"analysisId"`
	DocumentID       uuid.UUID                 `json:"documentId"`
	DocumentType     *string                   `json:"documentType,omitempty"`
	TypeConfidence   *float64                  `json:"typeConfidence,omitempty"`
	PageCount        *int                      `json:"pageCount,omitempty"`
	ProcessingStatus ProcessingStatus          `json:"processingStatus"`
	Metadata         JSONB                     `json:"metadata,omitempty"`
	DetectedPII      []PIIWithSuggestion       `json:"detectedPII"`
	Exemptions       []ExemptionClassification `json:"exemptions"`
}

type DashboardStats struct {
	TotalRequests int            `json:"totalRequests"`
	ByStatus      map[string]int `json:"byStatus"`
	ByPriority    map[string]int `json:"byPriority"`
	Overdue       int            `json:"overdue"`
	DueThisWeek   int            `json:"dueThisWeek"`
}

// RequestFilter narrows a request search. Zero values are ignored.
type RequestFilter struct {
	Query               string
	Status              RequestStatus
	Priority            Priority
	RequestType         RequestType
	RequesterEmail      string
	AssignedTo          string
	DateSubmittedAfter  *time.Time
	DateSubmittedBefore *time.Time
	DateDueAfter        *time.Time
	DateDueBefore       *time.Time
	SortBy              string
	SortOrder           string
	Limit               int
	Offset              int
}

// Analysis event types.
const (
	EventRequestAnalyzed  = "request.analyzed"
	EventDocumentAnalyzed = "document.analyzed"
)

// AnalysisEvent announces a finished analysis to downstream consumers.
// It never carries raw text or PII values.
type AnalysisEvent struct {
	Type             string         `json:"type"`
	AnalysisID       uuid.UUID      `json:"analysisId"`
	RequestID        *uuid.UUID     `json:"requestId,omitempty"`
	DocumentID       *uuid.UUID     `json:"documentId,omitempty"`
	DocumentType     string         `json:"documentType,omitempty"`
	Departments      []string       `json:"departments,omitempty"`
	PIICounts        map[string]int `json:"piiCounts,omitempty"`
	Exemptions       []string       `json:"exemptions,omitempty"`
	Confidence       float64        `json:"confidence"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
	OccurredAt       time.Time      `json:"occurredAt"`
}
