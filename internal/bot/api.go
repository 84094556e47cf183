// Package bot is the Telegram front end: a minimal Bot API client plus the
// update router that feeds photos into extraction and text into the
// completion dialogue.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Telegram Bot API wire types, limited to the fields this bot reads.

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Photo     []PhotoSize `json:"photo"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize entries arrive smallest first; the last one is the original
// resolution.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// API is a hand-rolled Bot API client. Only the handful of methods the bot
// needs are implemented; all calls go through the same envelope handling.
type API struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type APIConfig struct {
	Token   string
	BaseURL string // override for tests; default https://api.telegram.org
	Timeout time.Duration
}

func NewAPI(cfg APIConfig, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &API{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// GetUpdates long-polls for new updates past offset. The HTTP client's
// timeout must exceed the poll timeout or every empty poll turns into an
// error.
func (a *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	params.Set("allowed_updates", `["message"]`)

	raw, err := a.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage sends Markdown-formatted text to a chat.
func (a *API) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "Markdown")

	_, err := a.call(ctx, "sendMessage", params)
	return err
}

// GetFile resolves a file id to a downloadable path.
func (a *API) GetFile(ctx context.Context, fileID string) (File, error) {
	params := url.Values{}
	params.Set("file_id", fileID)

	raw, err := a.call(ctx, "getFile", params)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("decode file: %w", err)
	}
	return f, nil
}

// DownloadFile fetches the file content behind a path returned by GetFile.
func (a *API) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	u := a.baseURL + "/file/bot" + a.token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram download error: %w", err)
	}
	defer a.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// SendDocument uploads a document with an optional caption.
func (a *API) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	u := a.methodURL("sendDocument")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram http error: %w", err)
	}
	defer a.closeBody(resp.Body)
	return decodeEnvelope(resp, nil)
}

func (a *API) methodURL(method string) string {
	return a.baseURL + "/bot" + a.token + "/" + method
}

func (a *API) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.methodURL(method), bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram http error: %w", err)
	}
	defer a.closeBody(resp.Body)

	var result json.RawMessage
	if err := decodeEnvelope(resp, &result); err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	return result, nil
}

func decodeEnvelope(resp *http.Response, result *json.RawMessage) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.OK {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, env.Description)
	}
	if result != nil {
		*result = env.Result
	}
	return nil
}

func (a *API) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		a.log.Warn("telegram response body close error", "error", err)
	}
}
