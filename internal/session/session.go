// Package session owns the per-user conversational state: at most one
// pending receipt and the single field the next free-text message is
// expected to answer. State is ephemeral by design — it does not survive a
// restart, and nothing outside this package's store may hold a reference to
// it.
package session

import (
	"time"

	"github.com/shopspring/decimal"

	"receiptbot/internal/extract"
)

// PendingReceipt is one user's partially extracted receipt, alive only while
// a completion dialogue is running. Display values keep what the extractor
// produced; Parsed* hold the normalized forms that go to the database.
type PendingReceipt struct {
	UserID  int64
	Company string
	Date    string // display form, e.g. "09/07/2024"
	Price   string // display form, e.g. "45.90"

	ParsedPrice *decimal.Decimal
	ParsedDate  time.Time

	// Missing lists the unanswered fields in the order they will be asked.
	// The front element always equals State.WaitingFor.
	Missing []extract.FieldTag
}

// State is everything the bot remembers about one user between messages.
type State struct {
	UserID int64

	// WaitingFor is the field the next text message should answer; empty
	// means no dialogue is active. Non-empty iff Pending has missing fields.
	WaitingFor extract.FieldTag
	Pending    *PendingReceipt

	// LastRawText is the OCR output of the most recent heuristic-path
	// extraction, kept for the /raw command. It outlives the dialogue.
	LastRawText string
}

// DialogueActive reports whether a completion dialogue is in progress.
func (s *State) DialogueActive() bool {
	return s.WaitingFor != "" && s.Pending != nil
}

// ClearDialogue drops the pending receipt and the awaited field, leaving
// LastRawText intact.
func (s *State) ClearDialogue() {
	s.WaitingFor = ""
	s.Pending = nil
}
