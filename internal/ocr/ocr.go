// Package ocr turns a receipt photo into raw text by shelling out to
// tesseract. The dual-language default (heb+eng) matches the receipts this
// bot is built for: Hebrew body text with embedded Latin digits and currency
// marks.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"receiptbot/internal/common"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Languages   string // tesseract -l argument, default "heb+eng"
	TessdataDir string

	PSM int // 6 = uniform block of text, good for receipts
	OEM int // 3 = default engine selection
}

type Result struct {
	Text     string
	Language string
	Duration time.Duration
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "heb+eng"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract runs tesseract on an image file and returns the recognized text.
// A failure here is terminal for the extraction attempt; callers must not
// fall back to a partial result.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	e.logger.Debug("ocr.extract.start", "path", path, "lang", e.cfg.Languages)

	args := []string{path, "stdout", "-l", e.cfg.Languages}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		e.logger.Error("ocr.extract.failed",
			"path", path,
			"error", err,
			"stderr_bytes", len(errb),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Result{}, common.NewAppError("OCR_ERROR", fmt.Sprintf("tesseract: %s", firstLine(string(errb))), common.ErrOCRFailed)
	}

	text := strings.TrimSpace(string(out))
	e.logger.Info("ocr.extract.ok",
		"path", path,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		Text:     text,
		Language: e.cfg.Languages,
		Duration: time.Since(start),
	}, nil
}

// WithRunner replaces the command runner; tests use this to avoid spawning
// real processes.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
