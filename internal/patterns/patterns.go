// Package patterns holds the fixed lookup tables shared by the request and
// document analyzers: entity regexes, department keywords, document-type
// signatures and the statutory exemption table.
//
// Every table is built once at package init and only handed out as copies.
package patterns

import "regexp"

// Entity and PII type names.
const (
	TypePerson         = "PERSON"
	TypeOrg            = "ORG"
	TypeSSN            = "SSN"
	TypePhone          = "PHONE"
	TypeEmail          = "EMAIL"
	TypeDate           = "DATE"
	TypeMoney          = "MONEY"
	TypeCaseNumber     = "CASE_NUMBER"
	TypeAddress        = "ADDRESS"
	TypeCreditCard     = "CREDIT_CARD"
	TypeDriversLicense = "DRIVERS_LICENSE"
	TypeDOB            = "DOB"
	TypeZipCode        = "ZIP_CODE"
)

// Confidence adjustments applied after secondary validation.
const (
	InvalidSSNConfidence     = 0.70
	FailedLuhnConfidence     = 0.50
	PersonConfidence         = 0.7
	OrgConfidence            = 0.85
	RequestPatternConfidence = 0.95
)

// Pattern is a named matcher with the confidence assigned to its raw hits.
type Pattern struct {
	Name       string
	Regex      *regexp.Regexp
	Confidence float64
}

const (
	streetSuffixes         = `Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Court|Ct`
	documentStreetSuffixes = streetSuffixes + `|Circle|Cir|Way`
)

var (
	ssnRegex            = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phoneRegex          = regexp.MustCompile(`\b(?:\+1[-.]?)?\(?\d{3}\)?[-.]?\d{3}[-.]?\d{4}\b`)
	emailRegex          = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	dateRegex           = regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:\d{4}|\d{2})\b`)
	moneyRegex          = regexp.MustCompile(`\$\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\$\d+(?:\.\d{2})?`)
	caseNumberRegex     = regexp.MustCompile(`(?i)\b(?:case|file|docket|incident)[\s#:-]*\d+\b`)
	addressRegex        = regexp.MustCompile(`\b\d+\s+(?:[A-Z][a-z]+\s+)+(?:` + streetSuffixes + `)\b`)
	docAddressRegex     = regexp.MustCompile(`\b\d+\s+(?:[A-Z][a-z]+\s+)+(?:` + documentStreetSuffixes + `)\b`)
	creditCardRegex     = regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)
	driversLicenseRegex = regexp.MustCompile(`\b[A-Z]{1,2}\d{5,8}\b`)
	zipCodeRegex        = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)

	// PersonRegex matches two or more consecutive Title-Case words.
	PersonRegex = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	// OrgRegex matches a capitalised phrase ending in a legal-entity suffix.
	OrgRegex = regexp.MustCompile(`\b(?:[A-Z][\w&'-]*\s+)+(?:Inc|LLC|Corp|Ltd|Company|Department|Office|Agency|Association)\b`)
)

var requestPatterns = []Pattern{
	{Name: TypeSSN, Regex: ssnRegex, Confidence: RequestPatternConfidence},
	{Name: TypePhone, Regex: phoneRegex, Confidence: RequestPatternConfidence},
	{Name: TypeEmail, Regex: emailRegex, Confidence: RequestPatternConfidence},
	{Name: TypeDate, Regex: dateRegex, Confidence: RequestPatternConfidence},
	{Name: TypeMoney, Regex: moneyRegex, Confidence: RequestPatternConfidence},
	{Name: TypeCaseNumber, Regex: caseNumberRegex, Confidence: RequestPatternConfidence},
	{Name: TypeAddress, Regex: addressRegex, Confidence: RequestPatternConfidence},
}

var documentPatterns = []Pattern{
	{Name: TypeSSN, Regex: ssnRegex, Confidence: 0.95},
	{Name: TypePhone, Regex: phoneRegex, Confidence: 0.90},
	{Name: TypeEmail, Regex: emailRegex, Confidence: 0.95},
	{Name: TypeCreditCard, Regex: creditCardRegex, Confidence: 0.85},
	{Name: TypeDriversLicense, Regex: driversLicenseRegex, Confidence: 0.70},
	{Name: TypeDOB, Regex: dateRegex, Confidence: 0.75},
	{Name: TypeAddress, Regex: docAddressRegex, Confidence: 0.80},
	{Name: TypeZipCode, Regex: zipCodeRegex, Confidence: 0.75},
}

// RequestPatterns returns the matchers applied to request text by the entity extractor.
func RequestPatterns() []Pattern {
	return append([]Pattern(nil), requestPatterns...)
}

// DocumentPatterns returns the matchers applied to document text by the PII detector.
func DocumentPatterns() []Pattern {
	return append([]Pattern(nil), documentPatterns...)
}

// DateRegex is the inline date matcher, also used as a date-range signal.
func DateRegex() *regexp.Regexp {
	return dateRegex
}

var personDenylist = []string{
	"The City",
	"Public Records",
	"City Council",
	"Board Meeting",
	"United States",
	"New York",
	"Los Angeles",
	"Freedom of Information",
}

// PersonDenylist returns institutional phrases that are never reported as names.
func PersonDenylist() []string {
	return append([]string(nil), personDenylist...)
}
