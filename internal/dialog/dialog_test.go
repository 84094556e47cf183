package dialog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"receiptbot/internal/extract"
	"receiptbot/internal/repository"
	"receiptbot/internal/session"
)

type fakeSaver struct {
	inserts []repository.Payment
	err     error
}

func (f *fakeSaver) Insert(_ context.Context, p *repository.Payment) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserts = append(f.inserts, *p)
	return int64(len(f.inserts)), nil
}

func newTestMachine(saver *fakeSaver) *Machine {
	m := NewMachine(saver, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return time.Date(2024, 7, 9, 15, 4, 5, 0, time.UTC) }
	return m
}

func TestBeginPersistsWhenNothingMissing(t *testing.T) {
	saver := &fakeSaver{}
	m := newTestMachine(saver)
	st := &session.State{UserID: 42}

	reply := m.Begin(context.Background(), st, extract.Result{
		Company: "רמי לוי",
		Date:    "09/07/2024",
		Total:   "45.90",
	})

	if st.DialogueActive() {
		t.Fatal("dialogue should not be active when all fields are present")
	}
	if len(saver.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(saver.inserts))
	}
	got := saver.inserts[0]
	if got.UserID != "42" {
		t.Fatalf("user id = %q, want 42", got.UserID)
	}
	if got.Company != "רמי לוי" {
		t.Fatalf("company = %q", got.Company)
	}
	if !got.Date.Equal(time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", got.Date)
	}
	if got.Price.String() != "45.9" {
		t.Fatalf("price = %s", got.Price.String())
	}
	if !strings.Contains(reply, msgSavedOK) {
		t.Fatalf("reply missing save confirmation: %q", reply)
	}
}

func TestBeginStartsDialogueForMissingFields(t *testing.T) {
	saver := &fakeSaver{}
	m := newTestMachine(saver)
	st := &session.State{UserID: 7}

	reply := m.Begin(context.Background(), st, extract.Result{
		Company: "רמי לוי",
		Date:    extract.NotFound,
		Total:   extract.NotFound,
	})

	if !st.DialogueActive() {
		t.Fatal("dialogue should be active")
	}
	if st.WaitingFor != extract.FieldPrice {
		t.Fatalf("waiting for %q, want price first", st.WaitingFor)
	}
	if len(saver.inserts) != 0 {
		t.Fatal("nothing should be persisted yet")
	}
	if !strings.Contains(reply, extract.NotFound) {
		t.Fatalf("header should mark absent fields: %q", reply)
	}
	if !strings.Contains(reply, fieldPrompts[extract.FieldPrice]) {
		t.Fatalf("reply missing price prompt: %q", reply)
	}
}

func TestHandleTextFullCompletionFlow(t *testing.T) {
	saver := &fakeSaver{}
	m := newTestMachine(saver)
	st := &session.State{UserID: 7}
	ctx := context.Background()

	m.Begin(ctx, st, extract.Result{
		Company: "רמי לוי",
		Date:    extract.NotFound,
		Total:   extract.NotFound,
	})

	// price answered, dialogue advances to date without touching company
	reply, handled := m.HandleText(ctx, st, "45.90")
	if !handled {
		t.Fatal("price answer not handled")
	}
	if st.WaitingFor != extract.FieldDate {
		t.Fatalf("waiting for %q, want date", st.WaitingFor)
	}
	if st.Pending.Company != "רמי לוי" {
		t.Fatalf("company mutated: %q", st.Pending.Company)
	}
	if !strings.Contains(reply, fieldPrompts[extract.FieldDate]) {
		t.Fatalf("reply missing date prompt: %q", reply)
	}

	// invalid date re-prompts, state untouched
	reply, handled = m.HandleText(ctx, st, "לא יודע")
	if !handled || reply != fieldErrors[extract.FieldDate] {
		t.Fatalf("invalid date reply = %q handled=%v", reply, handled)
	}
	if st.WaitingFor != extract.FieldDate || len(st.Pending.Missing) != 1 {
		t.Fatal("invalid answer must not advance the dialogue")
	}
	if len(saver.inserts) != 0 {
		t.Fatal("nothing should be persisted on invalid input")
	}

	// valid date completes and persists exactly once
	reply, handled = m.HandleText(ctx, st, "09/07/2024")
	if !handled {
		t.Fatal("date answer not handled")
	}
	if st.DialogueActive() {
		t.Fatal("dialogue should be cleared on completion")
	}
	if len(saver.inserts) != 1 {
		t.Fatalf("inserts = %d, want exactly 1", len(saver.inserts))
	}
	got := saver.inserts[0]
	if got.Price.String() != "45.9" {
		t.Fatalf("price = %s", got.Price.String())
	}
	if !got.Date.Equal(time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", got.Date)
	}
	if !strings.Contains(reply, msgSavedOK) {
		t.Fatalf("completion reply missing confirmation: %q", reply)
	}

	// dialogue over: further text is not handled
	if _, handled = m.HandleText(ctx, st, "עוד טקסט"); handled {
		t.Fatal("text after completion should fall through to small talk")
	}
}

func TestHandleTextTodayKeyword(t *testing.T) {
	saver := &fakeSaver{}
	m := newTestMachine(saver)
	st := &session.State{UserID: 7}
	ctx := context.Background()

	m.Begin(ctx, st, extract.Result{
		Company: "רמי לוי",
		Date:    extract.NotFound,
		Total:   "45.90",
	})
	if st.WaitingFor != extract.FieldDate {
		t.Fatalf("waiting for %q, want date", st.WaitingFor)
	}

	if _, handled := m.HandleText(ctx, st, "היום"); !handled {
		t.Fatal("today keyword not handled")
	}
	if len(saver.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(saver.inserts))
	}
	want := time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)
	if !saver.inserts[0].Date.Equal(want) {
		t.Fatalf("date = %v, want clock date %v", saver.inserts[0].Date, want)
	}
}

func TestHandleTextCancel(t *testing.T) {
	saver := &fakeSaver{}
	m := newTestMachine(saver)
	st := &session.State{UserID: 7, LastRawText: "raw"}
	ctx := context.Background()

	m.Begin(ctx, st, extract.Result{
		Company: extract.NotFound,
		Date:    extract.NotFound,
		Total:   extract.NotFound,
	})

	reply, handled := m.HandleText(ctx, st, "ביטול")
	if !handled || reply != msgCancelled {
		t.Fatalf("cancel reply = %q handled=%v", reply, handled)
	}
	if st.DialogueActive() {
		t.Fatal("cancel must clear the dialogue")
	}
	if st.LastRawText != "raw" {
		t.Fatal("cancel must not drop the raw text")
	}
	if len(saver.inserts) != 0 {
		t.Fatal("cancel must not persist")
	}
	if _, handled = m.HandleText(ctx, st, "45.90"); handled {
		t.Fatal("text after cancel should not be handled")
	}
}

func TestHandleTextInvalidAnswers(t *testing.T) {
	cases := []struct {
		name    string
		missing extract.Result
		answer  string
	}{
		{
			name:    "company too short",
			missing: extract.Result{Company: extract.NotFound, Date: "09/07/2024", Total: "45.90"},
			answer:  "א",
		},
		{
			name:    "price not positive",
			missing: extract.Result{Company: "רמי לוי", Date: "09/07/2024", Total: extract.NotFound},
			answer:  "0",
		},
		{
			name:    "price not a number",
			missing: extract.Result{Company: "רמי לוי", Date: "09/07/2024", Total: extract.NotFound},
			answer:  "הרבה כסף",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			saver := &fakeSaver{}
			m := newTestMachine(saver)
			st := &session.State{UserID: 7}
			ctx := context.Background()

			m.Begin(ctx, st, tc.missing)
			tag := st.WaitingFor

			reply, handled := m.HandleText(ctx, st, tc.answer)
			if !handled || reply != fieldErrors[tag] {
				t.Fatalf("reply = %q handled=%v, want field error", reply, handled)
			}
			if st.WaitingFor != tag {
				t.Fatal("invalid answer must not advance")
			}
			if len(saver.inserts) != 0 {
				t.Fatal("invalid answer must not persist")
			}
		})
	}
}

func TestPersistFailureReportsAndClears(t *testing.T) {
	saver := &fakeSaver{err: errors.New("connection refused")}
	m := newTestMachine(saver)
	st := &session.State{UserID: 7}
	ctx := context.Background()

	m.Begin(ctx, st, extract.Result{
		Company: "רמי לוי",
		Date:    "09/07/2024",
		Total:   extract.NotFound,
	})

	reply, handled := m.HandleText(ctx, st, "45.90")
	if !handled {
		t.Fatal("answer not handled")
	}
	if !strings.Contains(reply, msgSaveFailed) {
		t.Fatalf("reply = %q, want save failure status", reply)
	}
	if st.DialogueActive() {
		t.Fatal("persistence failure must not re-open the dialogue")
	}
}

func TestIsCancel(t *testing.T) {
	for _, input := range []string{"ביטול", "cancel", "Cancel", " עצור "} {
		if !IsCancel(input) {
			t.Fatalf("IsCancel(%q) = false", input)
		}
	}
	for _, input := range []string{"ביטול בבקשה", "45.90", ""} {
		if IsCancel(input) {
			t.Fatalf("IsCancel(%q) = true", input)
		}
	}
}
