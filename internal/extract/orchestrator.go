package extract

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"receiptbot/internal/common"
	"receiptbot/internal/llm"
	"receiptbot/internal/ocr"
)

// VisionExtractor is the structured extraction service: image in, best-effort
// triple out. Implementations are fail-soft; an all-empty Fields means the
// service produced nothing usable.
type VisionExtractor interface {
	ExtractFields(ctx context.Context, image []byte, mimeType string) llm.Fields
}

// TextRecognizer is the OCR engine: image in, recognized text or an engine
// error out.
type TextRecognizer interface {
	Extract(ctx context.Context, path string) (ocr.Result, error)
}

// Orchestrator picks an extraction strategy per image and produces the
// common Result shape either way, so downstream logic never cares which
// strategy ran.
type Orchestrator struct {
	vision VisionExtractor
	text   TextRecognizer
	parser *HeuristicParser
	logger *slog.Logger
}

func NewOrchestrator(vision VisionExtractor, text TextRecognizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		vision: vision,
		text:   text,
		parser: NewHeuristicParser(),
		logger: logger,
	}
}

// Process extracts the receipt triple from the image at path. With
// preferVision the image goes straight to the structured service and RawText
// stays empty; otherwise OCR text is parsed heuristically and kept on the
// result for later display. Only a missing input file or an OCR engine
// failure surface as errors — a failing vision call degrades to an
// all-absent result inside the adapter.
func (o *Orchestrator) Process(ctx context.Context, imagePath string, preferVision bool) (Result, error) {
	start := time.Now()

	if _, err := os.Stat(imagePath); err != nil {
		o.logger.Error("extract.process.missing_image", "path", imagePath, "error", err)
		return Result{}, common.NewAppError("IMAGE_NOT_FOUND", "image file not found", common.ErrNotFound)
	}

	if preferVision {
		image, err := os.ReadFile(imagePath)
		if err != nil {
			o.logger.Error("extract.process.read_failed", "path", imagePath, "error", err)
			return Result{}, common.WrapError(err, "read image")
		}
		fields := o.vision.ExtractFields(ctx, image, mimeTypeOf(imagePath))
		res := Result{
			Company: orNotFound(fields.Company),
			Date:    orNotFound(fields.Date),
			Total:   orNotFound(fields.Total),
			Method:  MethodVision,
		}
		o.logger.Info("extract.process.ok",
			"method", res.Method,
			"missing", len(res.Missing()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, nil
	}

	ocrRes, err := o.text.Extract(ctx, imagePath)
	if err != nil {
		return Result{}, err
	}
	res := o.parser.Parse(ocrRes.Text)
	res.RawText = ocrRes.Text
	o.logger.Info("extract.process.ok",
		"method", res.Method,
		"missing", len(res.Missing()),
		"text_len", len(ocrRes.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func orNotFound(v string) string {
	if strings.TrimSpace(v) == "" {
		return NotFound
	}
	return v
}

func mimeTypeOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	switch strings.TrimPrefix(ext, ".") {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
