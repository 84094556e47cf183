// Package llm wraps the OpenAI vision endpoint as a structured receipt
// extractor. The adapter is fail-soft by contract: any transport, decode, or
// validation failure degrades to an all-absent Fields value so the caller
// always receives a well-formed result.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fields is the triple the extraction service is asked for. An empty string
// means the service found no value.
type Fields struct {
	Company string
	Date    string
	Total   string
}

type Config struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

const visionPrompt = `Extract the following information from this Hebrew receipt image:
1. Company name (שם החברה) – usually at the top or very bottom near 'תודה'.
2. Date – in DD/MM/YYYY format.
3. Total amount – the largest number near 'סה"כ', 'סך הכל', 'לתשלום'.

If data is missing, use null.
Return only valid JSON with keys: {"company": "...", "date": "...", "total": "..."}`

// ExtractFields sends the image to the vision model and returns the decoded
// triple. It never returns an error; failures are logged and mapped to an
// empty Fields.
func (c *Client) ExtractFields(ctx context.Context, image []byte, mimeType string) Fields {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_bytes", len(image),
		"mime_type", mimeType,
	)

	fields, err := c.extract(ctx, image, mimeType)
	if err != nil {
		c.log.Warn("llm.extract.fail_soft",
			"req_id", rid,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Fields{}
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"company", fields.Company,
		"date", fields.Date,
		"total", fields.Total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields
}

func (c *Client) extract(ctx context.Context, image []byte, mimeType string) (Fields, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      500,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": "You are a helpful receipt parser."},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": visionPrompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return Fields{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Fields{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return Fields{}, fmt.Errorf("no choices in openai response")
	}

	return decodeFields(cc.Choices[0].Message.Content)
}

// decodeFields locates the JSON object embedded in the model's reply,
// validates its shape, and maps nulls to absent values.
func decodeFields(content string) (Fields, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return Fields{}, fmt.Errorf("no JSON object in response")
	}
	jsonStr := []byte(content[start : end+1])

	if err := ValidateJSONAgainstSchema(buildFieldsJSONSchema(), jsonStr); err != nil {
		return Fields{}, err
	}

	var decoded struct {
		Company *string `json:"company"`
		Date    *string `json:"date"`
		Total   *string `json:"total"`
	}
	if err := json.Unmarshal(jsonStr, &decoded); err != nil {
		return Fields{}, fmt.Errorf("unmarshal fields: %w", err)
	}

	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return strings.TrimSpace(*p)
	}
	return Fields{
		Company: deref(decoded.Company),
		Date:    deref(decoded.Date),
		Total:   deref(decoded.Total),
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return buf.Bytes(), nil
}
