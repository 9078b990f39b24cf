package osimport

import "strings"

// Issue is one validation finding on an extracted field
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation partitions findings into blocking errors and informative warnings
type Validation struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// OK reports whether the record may be imported
func (v Validation) OK() bool {
	return len(v.Errors) == 0
}

// Validate checks an extracted record before import. Missing brand or model
// are created under a placeholder on import; a missing entry date becomes today.
func Validate(rec *ExtractedOrder) Validation {
	v := Validation{Errors: []Issue{}, Warnings: []Issue{}}
	if rec == nil {
		rec = &ExtractedOrder{}
	}

	if blank(rec.CustomerName) {
		v.Errors = append(v.Errors, Issue{Field: "cliente", Message: "customer name not found"})
	}
	if blank(rec.Phone) && blank(rec.AltPhone) {
		v.Errors = append(v.Errors, Issue{Field: "contato", Message: "no contact phone found"})
	}
	if blank(rec.Problem) {
		v.Errors = append(v.Errors, Issue{Field: "problema", Message: "problem description not found"})
	}

	if blank(rec.Brand) {
		v.Warnings = append(v.Warnings, Issue{Field: "marca", Message: "brand not found, a placeholder brand will be used"})
	}
	if blank(rec.Model) {
		v.Warnings = append(v.Warnings, Issue{Field: "modelo", Message: "model not found, a placeholder model will be used"})
	}
	if blank(rec.EntryDate) {
		v.Warnings = append(v.Warnings, Issue{Field: "data_entrada", Message: "entry date not found, today will be used"})
	}

	return v
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
