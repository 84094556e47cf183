package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"receiptbot/internal/common"
	"receiptbot/internal/llm"
	"receiptbot/internal/ocr"
)

type fakeVision struct {
	fields llm.Fields
	mime   string
	called bool
}

func (f *fakeVision) ExtractFields(_ context.Context, _ []byte, mimeType string) llm.Fields {
	f.called = true
	f.mime = mimeType
	return f.fields
}

type fakeRecognizer struct {
	text   string
	err    error
	called bool
}

func (f *fakeRecognizer) Extract(_ context.Context, _ string) (ocr.Result, error) {
	f.called = true
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Language: "heb+eng"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTempImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not a real image"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessVisionPath(t *testing.T) {
	vision := &fakeVision{fields: llm.Fields{Company: "רמי לוי", Date: "09/07/2024", Total: "45.90"}}
	text := &fakeRecognizer{}
	o := NewOrchestrator(vision, text, testLogger())

	res, err := o.Process(context.Background(), writeTempImage(t, "receipt.jpg"), true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !vision.called {
		t.Fatal("vision service not called")
	}
	if text.called {
		t.Fatal("ocr must not run on the vision path")
	}
	if vision.mime != "image/jpeg" {
		t.Fatalf("mime = %q", vision.mime)
	}
	if res.Method != MethodVision {
		t.Fatalf("method = %q", res.Method)
	}
	if res.Company != "רמי לוי" || res.Date != "09/07/2024" || res.Total != "45.90" {
		t.Fatalf("result = %+v", res)
	}
	if res.RawText != "" {
		t.Fatal("vision path keeps no raw text")
	}
}

func TestProcessVisionMapsEmptyToNotFound(t *testing.T) {
	vision := &fakeVision{fields: llm.Fields{Company: "רמי לוי"}}
	o := NewOrchestrator(vision, &fakeRecognizer{}, testLogger())

	res, err := o.Process(context.Background(), writeTempImage(t, "receipt.png"), true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Date != NotFound || res.Total != NotFound {
		t.Fatalf("empty fields should map to the marker: %+v", res)
	}
	if got := res.Missing(); len(got) != 2 {
		t.Fatalf("missing = %v, want price and date", got)
	}
}

func TestProcessHeuristicPath(t *testing.T) {
	text := &fakeRecognizer{text: "SuperStore\n09/07/2024\nTotal: 45.90 ₪"}
	o := NewOrchestrator(&fakeVision{}, text, testLogger())

	res, err := o.Process(context.Background(), writeTempImage(t, "receipt.jpg"), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Method != MethodHeuristic {
		t.Fatalf("method = %q", res.Method)
	}
	if res.Company != "SuperStore" || res.Total != "45.90" {
		t.Fatalf("result = %+v", res)
	}
	if res.RawText != text.text {
		t.Fatalf("raw text = %q, want the OCR output preserved", res.RawText)
	}
}

func TestProcessOCRFailurePropagates(t *testing.T) {
	ocrErr := common.NewAppError("OCR_ERROR", "tesseract: boom", common.ErrOCRFailed)
	o := NewOrchestrator(&fakeVision{}, &fakeRecognizer{err: ocrErr}, testLogger())

	_, err := o.Process(context.Background(), writeTempImage(t, "receipt.jpg"), false)
	if !errors.Is(err, common.ErrOCRFailed) {
		t.Fatalf("error = %v, want OCR failure to propagate", err)
	}
}

func TestProcessMissingImage(t *testing.T) {
	o := NewOrchestrator(&fakeVision{}, &fakeRecognizer{}, testLogger())

	_, err := o.Process(context.Background(), "/nonexistent/receipt.jpg", true)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("error = %v, want not-found", err)
	}
}
