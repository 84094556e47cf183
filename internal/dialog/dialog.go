// Package dialog implements the missing-field completion loop: a per-user
// state machine that turns a partial extraction result into a fully
// validated payment record, one prompted answer at a time.
//
// States are implicit in the session: no pending receipt means NoDialogue;
// a pending receipt plus WaitingFor means AwaitingField(tag). Completion and
// cancellation both clear the dialogue. All methods expect to run under the
// session store's per-user lock.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"receiptbot/internal/extract"
	"receiptbot/internal/repository"
	"receiptbot/internal/session"
)

// PaymentSaver is the persistence capability the machine needs: exactly one
// insert per completed receipt.
type PaymentSaver interface {
	Insert(ctx context.Context, p *repository.Payment) (int64, error)
}

type Machine struct {
	payments PaymentSaver
	logger   *slog.Logger
	now      func() time.Time
}

func NewMachine(payments PaymentSaver, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{payments: payments, logger: logger, now: time.Now}
}

// Begin seeds the dialogue from a fresh extraction result. When every field
// is present the record is persisted immediately and no dialogue starts;
// otherwise the state moves to awaiting the first missing field. A dialogue
// already active for this user is overwritten — last writer wins.
func (m *Machine) Begin(ctx context.Context, st *session.State, res extract.Result) string {
	pending := &session.PendingReceipt{
		UserID:     st.UserID,
		Missing:    res.Missing(),
		ParsedDate: extract.NormalizeDate(res.Date),
	}
	if extract.Present(res.Company) {
		pending.Company = res.Company
	}
	if extract.Present(res.Date) {
		pending.Date = res.Date
	}
	if extract.Present(res.Total) {
		pending.Price = res.Total
	}
	if price, ok := res.ParsedPrice(); ok {
		pending.ParsedPrice = &price
	}

	header := m.foundHeader(res)

	if len(pending.Missing) == 0 {
		st.ClearDialogue()
		status := m.persist(ctx, pending)
		return header + "\n" + status
	}

	st.Pending = pending
	st.WaitingFor = pending.Missing[0]
	m.logger.Info("dialog.begin",
		"user_id", st.UserID,
		"missing", len(pending.Missing),
		"waiting_for", string(st.WaitingFor),
	)
	return header + "\n" + msgMissingInfo + "\n" + fieldPrompts[st.WaitingFor]
}

// HandleText consumes one free-text reply. It returns false when no dialogue
// is active, leaving the message for the bot's small talk. Invalid answers
// re-prompt the same field without touching the pending receipt; a valid
// answer fills the field and either advances to the next one or completes
// the record with a single persistence call.
func (m *Machine) HandleText(ctx context.Context, st *session.State, text string) (string, bool) {
	if !st.DialogueActive() {
		return "", false
	}

	if IsCancel(text) {
		st.ClearDialogue()
		m.logger.Info("dialog.cancelled", "user_id", st.UserID)
		return msgCancelled, true
	}

	tag := st.WaitingFor
	pending := st.Pending

	confirmed, ok := m.applyAnswer(pending, tag, text)
	if !ok {
		m.logger.Debug("dialog.invalid_input", "user_id", st.UserID, "field", string(tag))
		return fieldErrors[tag], true
	}

	pending.Missing = pending.Missing[1:]

	if len(pending.Missing) > 0 {
		st.WaitingFor = pending.Missing[0]
		m.logger.Info("dialog.advance",
			"user_id", st.UserID,
			"filled", string(tag),
			"waiting_for", string(st.WaitingFor),
		)
		return "✅ " + fieldNames[tag] + ": " + confirmed + "\n\n" + fieldPrompts[st.WaitingFor], true
	}

	st.ClearDialogue()
	status := m.persist(ctx, pending)
	summary := fmt.Sprintf(
		"🎉 **פרטי הקבלה המלאים:**\n\n🏢 **עסק:** %s\n📅 **תאריך:** %s\n💰 **סכום:** %s\n\n%s",
		pending.Company,
		pending.Date,
		formatPrice(*pending.ParsedPrice),
		status,
	)
	return summary, true
}

// applyAnswer validates the reply for the awaited field and writes the
// normalized value into the pending receipt. It returns the confirmed
// display value. On validation failure the receipt is untouched.
func (m *Machine) applyAnswer(pending *session.PendingReceipt, tag extract.FieldTag, text string) (string, bool) {
	switch tag {
	case extract.FieldCompany:
		name := strings.TrimSpace(text)
		if utf8.RuneCountInString(name) < 2 {
			return "", false
		}
		pending.Company = name
		return name, true

	case extract.FieldPrice:
		price, ok := extract.NormalizePrice(text)
		if !ok || !price.IsPositive() {
			return "", false
		}
		pending.ParsedPrice = &price
		pending.Price = price.String()
		return formatPrice(price), true

	case extract.FieldDate:
		var date time.Time
		if isToday(text) {
			now := m.now()
			date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		} else {
			var ok bool
			date, ok = extract.ParseDate(text)
			if !ok {
				return "", false
			}
		}
		pending.ParsedDate = date
		pending.Date = formatDate(date)
		return pending.Date, true
	}
	return "", false
}

// persist hands the finalized record to the store exactly once. Failure is
// reported as a status line, never retried and never re-opening the
// dialogue.
func (m *Machine) persist(ctx context.Context, pending *session.PendingReceipt) string {
	price := decimal.Decimal{}
	if pending.ParsedPrice != nil {
		price = *pending.ParsedPrice
	}
	payment := &repository.Payment{
		UserID:  strconv.FormatInt(pending.UserID, 10),
		Company: pending.Company,
		Date:    pending.ParsedDate,
		Price:   price,
	}
	if _, err := m.payments.Insert(ctx, payment); err != nil {
		m.logger.Error("dialog.persist.failed", "user_id", pending.UserID, "error", err)
		return msgSaveFailed
	}
	return msgSavedOK
}

// foundHeader formats what the extraction produced, marker included for the
// fields it did not.
func (m *Machine) foundHeader(res extract.Result) string {
	total := displayOr(res.Total)
	if extract.Present(res.Total) {
		total += " ₪"
	}
	return fmt.Sprintf(
		"✅ **פרטי הקבלה:**\n\n🏢 **עסק:** %s\n📅 **תאריך:** %s\n💰 **סכום:** %s\n",
		displayOr(res.Company),
		displayOr(res.Date),
		total,
	)
}
