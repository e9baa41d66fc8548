package filename

import "strings"

// DocumentType is the semantic category derived from the filename's
// document-type code.
type DocumentType string

const (
	TypeConsultation DocumentType = "consultation"
	TypeEmergency    DocumentType = "emergency"
	TypeLabResults   DocumentType = "lab_results"
	TypeImaging      DocumentType = "imaging"
	TypePrescription DocumentType = "prescription"
	TypeDischarge    DocumentType = "discharge"
	TypeSurgery      DocumentType = "surgery"
	TypeOther        DocumentType = "other"
)

// documentTypeCodes maps the filename code to its category. Codes arrive in
// whatever case the scanner produced; lookup is on the uppercased form.
var documentTypeCodes = map[string]DocumentType{
	"CONS": TypeConsultation,
	"CON":  TypeConsultation,
	"URG":  TypeEmergency,
	"EMER": TypeEmergency,
	"ER":   TypeEmergency,
	"LAB":  TypeLabResults,
	"LABS": TypeLabResults,
	"IMG":  TypeImaging,
	"RAD":  TypeImaging,
	"IMAG": TypeImaging,
	"REC":  TypePrescription,
	"MED":  TypePrescription,
	"RX":   TypePrescription,
	"ALTA": TypeDischarge,
	"EGR":  TypeDischarge,
	"CIR":  TypeSurgery,
	"QX":   TypeSurgery,
	"CX":   TypeSurgery,
}

// DocumentTypeFromCode maps a filename code to its semantic category.
// Unknown codes are valid documents of unknown kind, never a parse failure.
func DocumentTypeFromCode(code string) DocumentType {
	if t, ok := documentTypeCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return t
	}
	return TypeOther
}

// AllDocumentTypes returns the closed set of categories in display order.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		TypeConsultation,
		TypeEmergency,
		TypeLabResults,
		TypeImaging,
		TypePrescription,
		TypeDischarge,
		TypeSurgery,
		TypeOther,
	}
}
