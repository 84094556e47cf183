// Package extract holds the receipt extraction core: the common result
// shape, the field normalizer, the heuristic Hebrew text parser, and the
// orchestrator that picks an extraction strategy per image.
package extract

import "github.com/shopspring/decimal"

// NotFound is the marker an extractor writes when it explicitly found no
// value. Distinct from "": the bot displays it verbatim to the user, so it
// stays in Hebrew like the rest of the user-facing strings.
const NotFound = "לא נמצא"

// Method identifies which strategy produced a Result.
type Method string

const (
	MethodVision    Method = "openai-vision"
	MethodHeuristic Method = "heuristic-parse"
)

// FieldTag identifies one receipt attribute in prompts, validation, and the
// missing-field queue.
type FieldTag string

const (
	FieldCompany FieldTag = "company"
	FieldPrice   FieldTag = "price"
	FieldDate    FieldTag = "date"
)

// Result is the common output of both extraction strategies. Company, Date
// and Total are display values; "" or NotFound means the field is absent.
type Result struct {
	Company string
	Date    string
	Total   string

	// RawText is the OCR output, present only on the heuristic path. It is
	// kept for on-demand display (/raw), never reprocessed.
	RawText string

	Method Method
}

// Present reports whether a display value carries a real field.
func Present(v string) bool {
	return v != "" && v != NotFound
}

// Missing returns the absent fields in the fixed completion order:
// company, price, date. Price counts as missing when the display value does
// not normalize, not merely when it is empty.
func (r Result) Missing() []FieldTag {
	var missing []FieldTag
	if !Present(r.Company) {
		missing = append(missing, FieldCompany)
	}
	if _, ok := NormalizePrice(r.Total); !ok {
		missing = append(missing, FieldPrice)
	}
	if !Present(r.Date) {
		missing = append(missing, FieldDate)
	}
	return missing
}

// ParsedPrice returns the normalized total, if the display value carries one.
func (r Result) ParsedPrice() (decimal.Decimal, bool) {
	return NormalizePrice(r.Total)
}
