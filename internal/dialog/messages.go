package dialog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"receiptbot/internal/extract"
)

// User-facing strings. The bot speaks Hebrew; Markdown bold survives
// Telegram's parse mode.

var fieldPrompts = map[extract.FieldTag]string{
	extract.FieldCompany: "🏢 **אנא הכנס את שם העסק/החברה:**\n(לדוגמה: סופר פארם, מקדונלדס, רמי לוי)",
	extract.FieldPrice:   "💰 **אנא הכנס את הסכום:**\n(לדוגמה: 25.50, 100, 15.99)",
	extract.FieldDate:    "📅 **אנא הכנס את התאריך:**\n(לדוגמה: 09/07/2024, 9.7.24, היום)",
}

var fieldErrors = map[extract.FieldTag]string{
	extract.FieldCompany: "❌ שם העסק צריך להכיל לפחות 2 תווים. נסה שוב:",
	extract.FieldPrice:   "❌ הסכום לא תקין. הכנס מספר (לדוגמה: 25.50). נסה שוב:",
	extract.FieldDate:    "❌ התאריך לא תקין. השתמש בפורמט כמו 09/07/2024 או כתוב 'היום'. נסה שוב:",
}

var fieldNames = map[extract.FieldTag]string{
	extract.FieldCompany: "עסק",
	extract.FieldPrice:   "סכום",
	extract.FieldDate:    "תאריך",
}

const (
	msgCancelled   = "✅ הפעולה בוטלה. שלח תמונה חדשה של קבלה כדי להתחיל מחדש."
	msgSavedOK     = "✅ **הנתונים נשמרו בהצלחה!**"
	msgSaveFailed  = "⚠️ **שגיאה בשמירת הנתונים**"
	msgMissingInfo = "⚠️ **חסר מידע!**"
)

// cancelKeywords stop an active dialogue in either language.
var cancelKeywords = []string{"ביטול", "cancel", "עצור"}

// todayKeywords short-circuit date entry to the current date.
var todayKeywords = []string{"היום", "today"}

// IsCancel reports whether the message is a cancellation keyword.
func IsCancel(text string) bool {
	return matchesKeyword(text, cancelKeywords)
}

func isToday(text string) bool {
	return matchesKeyword(text, todayKeywords)
}

func matchesKeyword(text string, keywords []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range keywords {
		if t == kw {
			return true
		}
	}
	return false
}

func formatPrice(d decimal.Decimal) string {
	return d.StringFixed(2) + " ₪"
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// displayOr shows the extracted display value, or the not-found marker.
func displayOr(v string) string {
	if extract.Present(v) {
		return v
	}
	return extract.NotFound
}
