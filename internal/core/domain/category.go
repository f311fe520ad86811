package domain

type CategoryCode string

const (
	CategoryMedicalRecord      CategoryCode = "medical_record"
	CategoryPrescription       CategoryCode = "prescription"
	CategoryPharmacyReceipt    CategoryCode = "pharmacy_receipt"
	CategoryLabResult          CategoryCode = "lab_result"
	CategoryImagingResult      CategoryCode = "imaging_result"
	CategoryHealthCheckup      CategoryCode = "health_checkup"
	CategoryHospitalBill       CategoryCode = "hospital_bill"
	CategoryDiagnosisReport    CategoryCode = "diagnosis_report"
	CategoryMedicalCertificate CategoryCode = "medical_certificate"
	CategoryOther              CategoryCode = "other"
)

var categories = []CategoryCode{
	CategoryMedicalRecord,
	CategoryPrescription,
	CategoryPharmacyReceipt,
	CategoryLabResult,
	CategoryImagingResult,
	CategoryHealthCheckup,
	CategoryHospitalBill,
	CategoryDiagnosisReport,
	CategoryMedicalCertificate,
	CategoryOther,
}

// Categories returns every category code in display order. CategoryOther is always last.
func Categories() []CategoryCode {
	out := make([]CategoryCode, len(categories))
	copy(out, categories)
	return out
}

func ParseCategoryCode(raw string) (CategoryCode, bool) {
	for _, code := range categories {
		if string(code) == raw {
			return code, true
		}
	}
	return CategoryOther, false
}

func (c CategoryCode) Valid() bool {
	_, ok := ParseCategoryCode(string(c))
	return ok
}

// CategoryDescriptor is the display metadata of a category.
type CategoryDescriptor struct {
	Code        CategoryCode `json:"code"`
	Name        string       `json:"name"`
	Icon        string       `json:"icon"`
	Color       string       `json:"color"`
	Description string       `json:"description"`
}

type CategoryStat struct {
	Category CategoryCode `json:"category"`
	Name     string       `json:"name"`
	Count    int          `json:"count"`
	LatestAt string       `json:"latestAt"`
}
