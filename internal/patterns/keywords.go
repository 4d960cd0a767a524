package patterns

// Department is a routing target and the keywords that point to it.
type Department struct {
	ID       string
	Name     string
	Keywords []string
}

// DocumentType is a document class and its keyword signature.
type DocumentType struct {
	Type     string
	Keywords []string
}

// Exemption is a statutory withholding category.
type Exemption struct {
	Code           string
	Name           string
	Keywords       []string
	BaseConfidence float64
}

var departments = []Department{
	{ID: "police", Name: "Police Department", Keywords: []string{"police", "officer", "arrest", "incident", "crime", "patrol", "detective", "investigation", "dispatch", "911"}},
	{ID: "building", Name: "Building & Safety", Keywords: []string{"permit", "construction", "building", "inspection", "zoning", "code", "violation", "safety"}},
	{ID: "finance", Name: "Finance Department", Keywords: []string{"budget", "expenditure", "contract", "payment", "invoice", "procurement", "bid", "purchase", "vendor"}},
	{ID: "hr", Name: "Human Resources", Keywords: []string{"employee", "salary", "personnel", "hiring", "termination", "benefits", "job", "staff", "payroll"}},
	{ID: "legal", Name: "Legal / City Attorney", Keywords: []string{"lawsuit", "litigation", "attorney", "legal", "settlement", "claim", "counsel"}},
	{ID: "clerk", Name: "City Clerk", Keywords: []string{"meeting", "minutes", "agenda", "resolution", "ordinance", "council", "commission"}},
	{ID: "parks", Name: "Parks & Recreation", Keywords: []string{"park", "recreation", "facility", "playground", "maintenance", "events"}},
	{ID: "public_works", Name: "Public Works", Keywords: []string{"road", "water", "sewer", "infrastructure", "utilities", "maintenance", "repair"}},
}

var documentTypes = []DocumentType{
	{Type: "invoice", Keywords: []string{"invoice", "bill", "amount due", "payment terms", "invoice number", "total amount", "account number"}},
	{Type: "email", Keywords: []string{"from:", "to:", "subject:", "sent:", "cc:", "bcc:", "reply-to:", "@"}},
	{Type: "memo", Keywords: []string{"memorandum", "memo", "to:", "from:", "date:", "re:", "subject:"}},
	{Type: "report", Keywords: []string{"executive summary", "findings", "recommendations", "analysis", "conclusion", "methodology"}},
	{Type: "contract", Keywords: []string{"agreement", "whereas", "party of the first part", "terms and conditions", "hereby agree", "signature"}},
	{Type: "letter", Keywords: []string{"dear", "sincerely", "yours truly", "best regards", "respectfully"}},
	{Type: "form", Keywords: []string{"please fill out", "section", "part", "checkbox", "signature", "date signed"}},
	{Type: "minutes", Keywords: []string{"meeting minutes", "attendees", "agenda", "motion carried", "adjourned"}},
	{Type: "policy", Keywords: []string{"policy", "procedure", "guidelines", "shall", "must", "required", "prohibited"}},
}

var exemptions = []Exemption{
	{Code: "b1", Name: "National Security", Keywords: []string{"classified", "top secret", "confidential", "national security", "defense", "intelligence"}, BaseConfidence: 0.85},
	{Code: "b2", Name: "Internal Personnel Rules", Keywords: []string{"internal", "personnel", "administrative", "housekeeping", "routine"}, BaseConfidence: 0.70},
	{Code: "b3", Name: "Statutory Exemption", Keywords: []string{"exempt by statute", "prohibited by law", "statute prohibits"}, BaseConfidence: 0.80},
	{Code: "b4", Name: "Trade Secrets", Keywords: []string{"trade secret", "proprietary", "confidential business", "commercial", "competitive"}, BaseConfidence: 0.75},
	{Code: "b5", Name: "Deliberative Process", Keywords: []string{"draft", "deliberative", "predecisional", "attorney-client", "work product", "privileged"}, BaseConfidence: 0.80},
	{Code: "b6", Name: "Personal Privacy", Keywords: []string{"personal privacy", "private information", "medical records", "personnel file"}, BaseConfidence: 0.85},
	{Code: "b7", Name: "Law Enforcement", Keywords: []string{"investigation", "law enforcement", "criminal", "ongoing investigation", "confidential source"}, BaseConfidence: 0.75},
	{Code: "b8", Name: "Financial Institutions", Keywords: []string{"financial institution", "bank examination", "regulatory"}, BaseConfidence: 0.70},
	{Code: "b9", Name: "Geological Information", Keywords: []string{"geological", "geophysical", "well", "oil", "gas"}, BaseConfidence: 0.70},
}

// Departments returns the routing table in its fixed iteration order.
func Departments() []Department {
	out := make([]Department, len(departments))
	for i, d := range departments {
		d.Keywords = append([]string(nil), d.Keywords...)
		out[i] = d
	}
	return out
}

// DocumentTypes returns the document signature table in its fixed order.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	for i, d := range documentTypes {
		d.Keywords = append([]string(nil), d.Keywords...)
		out[i] = d
	}
	return out
}

// Exemptions returns the b1..b9 table.
func Exemptions() []Exemption {
	out := make([]Exemption, len(exemptions))
	for i, e := range exemptions {
		e.Keywords = append([]string(nil), e.Keywords...)
		out[i] = e
	}
	return out
}
