package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var reNonPrice = regexp.MustCompile(`[^\d.,]`)

// NormalizePrice parses a free-form price token into a decimal. Currency
// glyphs and other noise are stripped first; a comma is a thousands
// separator when a period is also present, otherwise it is the decimal
// separator. Returns false on the not-found marker, an empty remainder, or
// anything that still fails to parse. Range checks (e.g. > 0) belong to the
// caller.
func NormalizePrice(text string) (decimal.Decimal, bool) {
	if text == "" || text == NotFound {
		return decimal.Decimal{}, false
	}

	cleaned := reNonPrice.ReplaceAllString(text, "")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	switch {
	case strings.Contains(cleaned, ",") && strings.Contains(cleaned, "."):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// dateLayouts is the fixed, ordered list of accepted day-month-year forms.
// Unpadded layout digits let "9/7/2024" and "09/07/2024" both parse.
var dateLayouts = []string{
	"2/1/2006",
	"2.1.2006",
	"2-1-2006",
	"2006-1-2",
	"2/1/06",
	"2.1.06",
}

// ParseDate attempts the known layouts in order and reports whether one of
// them matched.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text == NotFound {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate parses a display date, falling back to today when the input
// is empty, the not-found marker, or unparseable. This never-fail behavior
// is deliberate: a receipt with an unreadable date is still recorded, dated
// the day it was scanned. Callers that must distinguish "no date" use
// ParseDate instead.
func NormalizeDate(text string) time.Time {
	if t, ok := ParseDate(text); ok {
		return t
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
