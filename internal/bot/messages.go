package bot

import "fmt"

// Telegram caps messages at 4096 chars; stay under it with formatting
// overhead included.
const maxMessageLen = 4000

const msgWelcome = "שלום! אני בוט לסריקת קבלות 🧾\n\n" +
	"שלח לי תמונה של קבלה ואני אחלץ:\n" +
	"• שם החברה/עסק\n" +
	"• תאריך\n" +
	"• סכום כולל\n\n" +
	"הנתונים יישמרו באופן אוטומטי במסד הנתונים שלך!\n\n" +
	"פקודות זמינות:\n" +
	"/start - התחל\n" +
	"/help - עזרה\n" +
	"/payments - הצג את כל התשלומים שלי\n" +
	"/export - קובץ אקסל עם כל התשלומים\n" +
	"/raw - הצג טקסט גולמי מהקבלה האחרונה\n\n" +
	"פשוט שלח תמונה של הקבלה!"

const msgHelp = "🤖 הוראות שימוש:\n\n" +
	"1. שלח תמונה של קבלה\n" +
	"2. הבוט יסרוק ויחלץ את המידע\n" +
	"3. אם חסר מידע, הבוט יבקש ממך להשלים\n" +
	"4. הנתונים יישמרו אוטומטית\n\n" +
	"💡 טיפים:\n" +
	"• וודא שהתמונה ברורה\n" +
	"• הקבלה צריכה להיות מלאה\n" +
	"• תאורה טובה משפרת תוצאות\n" +
	"• אם הבוט לא מזהה נתונים, תוכל להכניס אותם ידנית\n\n" +
	"📊 פקודות נוספות:\n" +
	"/payments - הצג את כל התשלומים שלי\n" +
	"/export - קובץ אקסל עם כל התשלומים\n" +
	"/raw - הצג טקסט גולמי מהקבלה האחרונה\n" +
	"ביטול - עצור תהליך השלמת נתונים"

const (
	msgProcessing    = "⏳ מעבד את הקבלה..."
	msgImageError    = "❌ אירעה שגיאה בעיבוד התמונה.\nוודא שזו תמונה של קבלה ונסה שוב."
	msgRawHint       = "💡 רוצה לראות את הטקסט המלא? שלח /raw"
	msgNoRawText     = "אין טקסט זמין. שלח תמונה של קבלה קודם."
	msgNoPayments    = "🔍 לא נמצאו תשלומים עבורך עדיין.\nשלח תמונה של קבלה כדי להתחיל!"
	msgPaymentsError = "❌ שגיאה בטעינת התשלומים. נסה שוב מאוחר יותר."
	msgExportError   = "❌ שגיאה ביצירת קובץ האקסל. נסה שוב מאוחר יותר."
	msgExportCaption = "📊 כל התשלומים שלך"
	msgCancelledIdle = "✅ הפעולה בוטלה. שלח תמונה חדשה של קבלה כדי להתחיל מחדש."
	msgYoureWelcome  = "בשמחה! 😊 אם יש לך עוד קבלה, שלח לי אותה."
	msgDontUnderstand = "לא הבנתי... נסה לשלוח קבלה 📷 או כתוב /help לעזרה."
)

func msgExtractError(err error) string {
	return fmt.Sprintf("❌ שגיאה בעיבוד הקבלה:\n%v\n\nנסה לשלוח תמונה ברורה יותר.", err)
}
