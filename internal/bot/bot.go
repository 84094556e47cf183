package bot

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"receiptbot/internal/dialog"
	"receiptbot/internal/extract"
	"receiptbot/internal/repository"
	"receiptbot/internal/session"
)

// Transport is the slice of the Bot API the router uses; tests supply a
// fake.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	GetFile(ctx context.Context, fileID string) (File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
}

// Extractor runs one extraction attempt over a downloaded image.
type Extractor interface {
	Process(ctx context.Context, imagePath string, preferVision bool) (extract.Result, error)
}

// Exporter renders a user's payment history as a workbook.
type Exporter interface {
	PaymentsXLSX(ctx context.Context, userID string) ([]byte, error)
}

type Config struct {
	PollTimeout  time.Duration
	PreferVision bool
}

// Bot polls Telegram for updates and routes each one: commands to their
// handlers, photos into the extraction pipeline, free text into the
// completion dialogue (or small talk when none is active).
type Bot struct {
	cfg       Config
	transport Transport
	extractor Extractor
	machine   *dialog.Machine
	sessions  *session.Store
	payments  repository.PaymentRepository
	exporter  Exporter
	logger    *slog.Logger

	inboxMu sync.Mutex
	inboxes map[int64]chan Update
}

func New(cfg Config, transport Transport, extractor Extractor, machine *dialog.Machine,
	sessions *session.Store, payments repository.PaymentRepository, exporter Exporter,
	logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	return &Bot{
		cfg:       cfg,
		transport: transport,
		extractor: extractor,
		machine:   machine,
		sessions:  sessions,
		payments:  payments,
		exporter:  exporter,
		logger:    logger,
		inboxes:   make(map[int64]chan Update),
	}
}

// Run long-polls until the context is cancelled. Updates go through per-user
// mailboxes: one user's updates are handled sequentially in arrival order,
// different users run on independent goroutines.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot.run.start", "poll_timeout", b.cfg.PollTimeout.String())
	var offset int64
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot.run.stop")
			return ctx.Err()
		default:
		}

		updates, err := b.transport.GetUpdates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("bot.poll.failed", "error", err)
			time.Sleep(3 * time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.dispatch(ctx, u)
		}
	}
}

// inboxSize bounds one user's backlog; a full inbox applies backpressure to
// the poll loop rather than dropping or reordering updates.
const inboxSize = 16

// dispatch routes the update to its user's mailbox, starting the draining
// goroutine on first contact.
func (b *Bot) dispatch(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}

	b.inboxMu.Lock()
	inbox, ok := b.inboxes[msg.From.ID]
	if !ok {
		inbox = make(chan Update, inboxSize)
		b.inboxes[msg.From.ID] = inbox
		go b.drain(ctx, inbox)
	}
	b.inboxMu.Unlock()

	select {
	case inbox <- u:
	case <-ctx.Done():
	}
}

func (b *Bot) drain(ctx context.Context, inbox <-chan Update) {
	for {
		select {
		case u := <-inbox:
			b.handleUpdate(ctx, u)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}

	switch {
	case strings.HasPrefix(msg.Text, "/start"):
		b.reply(ctx, msg.Chat.ID, msgWelcome)
	case strings.HasPrefix(msg.Text, "/help"):
		b.reply(ctx, msg.Chat.ID, msgHelp)
	case strings.HasPrefix(msg.Text, "/payments"):
		b.handlePayments(ctx, msg)
	case strings.HasPrefix(msg.Text, "/export"):
		b.handleExport(ctx, msg)
	case strings.HasPrefix(msg.Text, "/raw"):
		b.handleRaw(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, msg)
	}
}

// handlePhoto downloads the largest photo variant, runs extraction, and
// starts (or immediately completes) the completion dialogue. A new photo
// overwrites any dialogue already active for the user.
func (b *Bot) handlePhoto(ctx context.Context, msg *Message) {
	userID := msg.From.ID
	b.reply(ctx, msg.Chat.ID, msgProcessing)

	photo := msg.Photo[len(msg.Photo)-1]
	path, cleanup, err := b.downloadPhoto(ctx, photo.FileID)
	if err != nil {
		b.logger.Error("bot.photo.download_failed", "user_id", userID, "error", err)
		b.reply(ctx, msg.Chat.ID, msgImageError)
		return
	}
	defer cleanup()

	res, err := b.extractor.Process(ctx, path, b.cfg.PreferVision)
	if err != nil {
		b.logger.Error("bot.photo.extract_failed", "user_id", userID, "error", err)
		b.reply(ctx, msg.Chat.ID, msgExtractError(err))
		return
	}

	var reply string
	b.sessions.Update(userID, func(st *session.State) {
		if res.RawText != "" {
			st.LastRawText = res.RawText
		}
		reply = b.machine.Begin(ctx, st, res)
	})
	b.reply(ctx, msg.Chat.ID, reply)

	if res.RawText != "" {
		b.reply(ctx, msg.Chat.ID, msgRawHint)
	}
}

func (b *Bot) downloadPhoto(ctx context.Context, fileID string) (string, func(), error) {
	f, err := b.transport.GetFile(ctx, fileID)
	if err != nil {
		return "", nil, err
	}
	data, err := b.transport.DownloadFile(ctx, f.FilePath)
	if err != nil {
		return "", nil, err
	}

	tmp, err := os.CreateTemp("", "receipt-*.jpg")
	if err != nil {
		return "", nil, err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { _ = os.Remove(tmp.Name()) }, nil
}

// handleText gives the completion dialogue first claim on the message, then
// falls back to small talk.
func (b *Bot) handleText(ctx context.Context, msg *Message) {
	userID := msg.From.ID

	var reply string
	var handled bool
	b.sessions.Update(userID, func(st *session.State) {
		reply, handled = b.machine.HandleText(ctx, st, msg.Text)
	})
	if handled {
		b.reply(ctx, msg.Chat.ID, reply)
		return
	}

	text := strings.ToLower(strings.TrimSpace(msg.Text))
	switch {
	case isGreeting(text):
		name := msg.From.FirstName
		if name == "" {
			name = "😊"
		}
		b.reply(ctx, msg.Chat.ID, "היי "+name+"!")
	case text == "נתונים":
		b.handlePayments(ctx, msg)
	case dialog.IsCancel(text):
		// No dialogue active, but acknowledge anyway.
		b.reply(ctx, msg.Chat.ID, msgCancelledIdle)
	case strings.Contains(text, "תודה"):
		b.reply(ctx, msg.Chat.ID, msgYoureWelcome)
	default:
		b.reply(ctx, msg.Chat.ID, msgDontUnderstand)
	}
}

// handlePayments lists the user's history with a total, splitting overly
// long replies the way Telegram's message limit demands.
func (b *Bot) handlePayments(ctx context.Context, msg *Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	payments, err := b.payments.ListByUser(ctx, userID)
	if err != nil {
		b.logger.Error("bot.payments.list_failed", "user_id", userID, "error", err)
		b.reply(ctx, msg.Chat.ID, msgPaymentsError)
		return
	}
	if len(payments) == 0 {
		b.reply(ctx, msg.Chat.ID, msgNoPayments)
		return
	}

	total := decimal.Zero
	var sb strings.Builder
	sb.WriteString("📊 **התשלומים שלך (" + strconv.Itoa(len(payments)) + " סה\"כ):**\n\n")
	for _, p := range payments {
		total = total.Add(p.Price)
		sb.WriteString("🏢 **" + p.Company + "**\n")
		sb.WriteString("📅 " + p.Date.Format("02/01/2006") + " | 💰 " + p.Price.StringFixed(2) + " ₪\n\n")
	}
	sb.WriteString("💳 **סה\"כ הוצאות:** " + total.StringFixed(2) + " ₪")

	response := sb.String()
	if len(response) <= maxMessageLen {
		b.reply(ctx, msg.Chat.ID, response)
		return
	}

	b.reply(ctx, msg.Chat.ID,
		"📊 **סיכום התשלומים:**\n💳 סה\"כ הוצאות: "+total.StringFixed(2)+" ₪\n📈 מספר תשלומים: "+strconv.Itoa(len(payments)))

	recent := payments
	if len(recent) > 10 {
		recent = recent[:10]
	}
	var rb strings.Builder
	rb.WriteString("📋 **10 התשלומים האחרונים:**\n\n")
	for _, p := range recent {
		rb.WriteString("🏢 " + p.Company + " | 📅 " + p.Date.Format("02/01/2006") + " | 💰 " + p.Price.StringFixed(2) + " ₪\n")
	}
	b.reply(ctx, msg.Chat.ID, rb.String())
}

func (b *Bot) handleExport(ctx context.Context, msg *Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	data, err := b.exporter.PaymentsXLSX(ctx, userID)
	if err != nil {
		b.logger.Error("bot.export.failed", "user_id", userID, "error", err)
		b.reply(ctx, msg.Chat.ID, msgExportError)
		return
	}
	if err := b.transport.SendDocument(ctx, msg.Chat.ID, "payments.xlsx", data, msgExportCaption); err != nil {
		b.logger.Error("bot.export.send_failed", "user_id", userID, "error", err)
		b.reply(ctx, msg.Chat.ID, msgExportError)
	}
}

// handleRaw replays the OCR text of the last heuristic extraction, chunked
// to the message limit.
func (b *Bot) handleRaw(ctx context.Context, msg *Message) {
	st, ok := b.sessions.Get(msg.From.ID)
	if !ok || st.LastRawText == "" {
		b.reply(ctx, msg.Chat.ID, msgNoRawText)
		return
	}

	raw := st.LastRawText
	if len(raw) <= maxMessageLen {
		b.reply(ctx, msg.Chat.ID, "📄 **טקסט גולמי:**\n```\n"+raw+"\n```")
		return
	}
	chunks := chunkString(raw, maxMessageLen)
	for i, chunk := range chunks {
		b.reply(ctx, msg.Chat.ID,
			"📄 **טקסט גולמי (חלק "+strconv.Itoa(i+1)+"/"+strconv.Itoa(len(chunks))+"):**\n```\n"+chunk+"\n```")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.transport.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("bot.send.failed", "chat_id", chatID, "error", err)
	}
}

func isGreeting(text string) bool {
	switch text {
	case "היי", "שלום", "hi", "hey":
		return true
	}
	return false
}

// chunkString splits on byte boundaries aligned to rune starts.
func chunkString(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		cut := size
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
