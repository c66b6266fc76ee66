package validation

import (
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// an export window must not end before it begins
	v.RegisterStructValidation(exportWindowStructValidation, ExportWindow{})

	return v
}

func exportWindowStructValidation(sl validatorv10.StructLevel) {
	w := sl.Current().Interface().(ExportWindow)

	begin, err := time.Parse(DateLayout, w.BeginDate)
	if err != nil {
		return // reported by the field-level datetime tag
	}
	end, err := time.Parse(DateLayout, w.EndDate)
	if err != nil {
		return
	}
	if end.Before(begin) {
		sl.ReportError(w.EndDate, "endDate", "EndDate", "window_order", "")
	}
}
