package filename

import (
	"path"
	"regexp"
	"strings"
)

// Parse confidences are fixed by convention tier and never recomputed
// downstream.
const (
	strictConfidence  = 0.99
	relaxedConfidence = 0.95
)

// ParsedIdentity is the structured form of one intake filename.
type ParsedIdentity struct {
	RecordNumber    string       `json:"record_number"`
	GivenNames      string       `json:"given_names"`
	PaternalSurname string       `json:"paternal_surname"`
	MaternalSurname string       `json:"maternal_surname"`
	FullName        string       `json:"full_name"`
	NormalizedName  string       `json:"normalized_name"`
	SecondaryNumber string       `json:"secondary_number,omitempty"`
	DocumentType    DocumentType `json:"document_type"`
	Confidence      float64      `json:"confidence"`
	SourceName      string       `json:"source_name"`
}

// Failure explains why a filename did not parse and how to fix it.
type Failure struct {
	Input       string   `json:"input"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions"`
}

// Result is the outcome of parsing one filename.
type Result struct {
	Identity *ParsedIdentity
	Failure  *Failure
}

// OK reports whether the filename parsed.
func (r Result) OK() bool {
	return r.Identity != nil
}

// namePattern requires the comma that separates surnames from given names.
// Field separators are underscores, so names never contain one.
var (
	strictPattern = regexp.MustCompile(`^(\d{10})_([^_,]+, [^_,]+)_(\d+)_([A-Za-z]{2,6})\.([a-z0-9]+|[A-Z0-9]+)$`)

	relaxedPatterns = []struct {
		re           *regexp.Regexp
		hasSecondary bool
	}{
		// Variable-length record number, mixed-case extension.
		{regexp.MustCompile(`^(\d{4,})_([^_,]+,[^_,]+)_(\d+)_([A-Za-z]{2,6})\.([A-Za-z0-9]+)$`), true},
		// Secondary document number missing entirely.
		{regexp.MustCompile(`^(\d{4,})_([^_,]+,[^_,]+)_([A-Za-z]{2,6})\.([A-Za-z0-9]+)$`), false},
	}
)

// Parser parses intake filenames. It is stateless and safe for concurrent
// use; construction exists so thresholds or pattern sets can become options
// without changing call sites.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse converts one filename into a ParsedIdentity or a Failure. It is
// total: any input, including empty or non-ASCII strings, yields a Result.
func (p *Parser) Parse(name string) Result {
	source := strings.TrimSpace(name)
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	if source == "" || base == "." || base == "/" {
		return failure(source, "empty filename", []string{
			"provide a filename in the form RECORDNUMBER_SURNAMES, GIVEN NAMES_DOCNUMBER_TYPE.pdf",
		})
	}

	if m := strictPattern.FindStringSubmatch(base); m != nil {
		return Result{Identity: p.build(source, m[1], m[2], m[3], m[4], strictConfidence)}
	}
	for _, candidate := range relaxedPatterns {
		m := candidate.re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		if candidate.hasSecondary {
			return Result{Identity: p.build(source, m[1], m[2], m[3], m[4], relaxedConfidence)}
		}
		return Result{Identity: p.build(source, m[1], m[2], "", m[3], relaxedConfidence)}
	}

	reason, suggestions := diagnose(base)
	return failure(source, reason, suggestions)
}

func (p *Parser) build(source, record, nameSegment, secondary, code string, confidence float64) *ParsedIdentity {
	given, paternal, maternal := splitNameSegment(nameSegment)
	fullName := strings.TrimSpace(strings.Join(strings.Fields(given+" "+paternal+" "+maternal), " "))
	return &ParsedIdentity{
		RecordNumber:    strings.TrimSpace(record),
		GivenNames:      given,
		PaternalSurname: paternal,
		MaternalSurname: maternal,
		FullName:        fullName,
		NormalizedName:  NormalizeName(fullName),
		SecondaryNumber: strings.TrimSpace(secondary),
		DocumentType:    DocumentTypeFromCode(code),
		Confidence:      confidence,
		SourceName:      source,
	}
}

func failure(input, reason string, suggestions []string) Result {
	return Result{Failure: &Failure{Input: input, Reason: reason, Suggestions: suggestions}}
}

// diagnose pinpoints the first structural defect and orders suggestions from
// most to least likely fix.
func diagnose(base string) (string, []string) {
	stem := base
	ext := path.Ext(base)
	if ext != "" {
		stem = strings.TrimSuffix(base, ext)
	}

	var reason string
	var suggestions []string

	switch {
	case ext == "" || ext == ".":
		reason = "missing file extension"
		suggestions = append(suggestions, "ensure the filename ends with an extension such as .pdf")
	case !strings.Contains(stem, "_"):
		reason = "fields are not underscore-separated"
		suggestions = append(suggestions, "separate fields with underscores: RECORDNUMBER_SURNAMES, GIVEN NAMES_DOCNUMBER_TYPE.pdf")
	case !strings.Contains(nameSegmentOf(stem), ","):
		reason = "name segment has no comma"
		suggestions = append(suggestions, "write the patient name as SURNAMES, GIVEN NAMES")
	case !startsWithDigits(stem):
		reason = "record number missing from the start of the filename"
		suggestions = append(suggestions, "start the filename with the numeric patient record number")
	default:
		reason = "filename does not match the intake convention"
	}

	suggestions = append(suggestions,
		"expected form: RECORDNUMBER_SURNAMES, GIVEN NAMES_DOCNUMBER_TYPE.pdf",
		"example: 3000003799_GARZA TIJERINA, MARIA ESTHER_6001467010_CONS.pdf",
	)
	return reason, suggestions
}

// nameSegmentOf isolates the likely name field: everything between the first
// and last underscore-separated numeric/code fields.
func nameSegmentOf(stem string) string {
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return stem
	}
	return strings.Join(parts[1:], "_")
}

func startsWithDigits(stem string) bool {
	head, _, _ := strings.Cut(stem, "_")
	if head == "" {
		return false
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
