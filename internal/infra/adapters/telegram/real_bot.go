package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
	"telegram-ai-consult/internal/infra/i18n"
	"telegram-ai-consult/internal/infra/logging"
	"telegram-ai-consult/internal/infra/metrics"
	"telegram-ai-consult/internal/usecase"
)

// API is the part of *tgbotapi.BotAPI the adapter uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Payments is the slice of PaymentUseCase the bot drives.
type Payments interface {
	Checkout(ctx context.Context, userID, tariffID string) (string, int64, error)
	RedeemPromo(ctx context.Context, userID, tariffID, code string) (*model.PaymentRecord, error)
	SimulateCard(ctx context.Context, userID, tariffID string) (*model.PaymentRecord, error)
	Entitlement(ctx context.Context, userID string) (model.Entitlement, error)
}

// RateLimiter is implemented by the memory and redis limiters.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, per time.Duration) (bool, error)
}

type Deps struct {
	Payments    Payments
	Chat        usecase.ChatUseCase
	Catalog     *usecase.TariffCatalog
	States      repository.StateRepository
	RateLimiter RateLimiter
	Translator  *i18n.Translator
}

type Options struct {
	Workers        int
	RateLimit      int
	RateWindow     time.Duration
	PromoEnabled   bool
	CardEnabled    bool
	TimeLocation   *time.Location
	RequestTimeout time.Duration
}

// Bot polls Telegram updates and routes them to the payment and chat use
// cases. It also delivers payment confirmations pushed by the HTTP server.
type Bot struct {
	api        API
	payments   Payments
	chat       usecase.ChatUseCase
	catalog    *usecase.TariffCatalog
	states     repository.StateRepository
	limiter    RateLimiter
	translator *i18n.Translator
	opts       Options
	log        *zerolog.Logger

	cancelPolling context.CancelFunc
}

// NewBotAPI connects to Telegram with token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api API, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram api is nil")
	}
	if deps.Payments == nil || deps.Chat == nil || deps.Catalog == nil {
		return nil, errors.New("telegram: payments, chat and catalog are required")
	}
	if deps.States == nil || deps.Translator == nil {
		return nil, errors.New("telegram: states and translator are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.TimeLocation == nil {
		opts.TimeLocation = time.UTC
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	l := logger.With().Str("component", "TelegramBot").Logger()
	return &Bot{
		api:        api,
		payments:   deps.Payments,
		chat:       deps.Chat,
		catalog:    deps.Catalog,
		states:     deps.States,
		limiter:    deps.RateLimiter,
		translator: deps.Translator,
		opts:       opts,
		log:        &l,
	}, nil
}

// StartPolling fans updates out to a fixed worker pool. It blocks until ctx
// is cancelled and every worker has drained.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancelPolling = cancel
	defer cancel()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				b.dispatch(ctx, id, up)
			}
		}(i)
	}
	b.log.Info().Int("workers", b.opts.Workers).Msg("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			b.log.Info().Msg("telegram polling stopped")
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (b *Bot) StopPolling() {
	if b.cancelPolling != nil {
		b.cancelPolling()
	}
}

func (b *Bot) dispatch(ctx context.Context, worker int, up tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error().Interface("panic", rec).Int("update_id", up.UpdateID).Msg("update handler panicked")
		}
	}()
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()
	if err := b.handleUpdate(ctx, up); err != nil {
		logging.With(ctx, b.log).Warn().Err(err).Int("worker", worker).Int("update_id", up.UpdateID).Msg("update failed")
	}
}

func (b *Bot) handleUpdate(ctx context.Context, up tgbotapi.Update) error {
	if up.CallbackQuery != nil {
		return b.handleQuery(ctx, up.CallbackQuery)
	}
	msg := up.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}
	ctx = logging.WithTgID(ctx, msg.From.ID)
	ctx = logging.WithUserID(ctx, userIDOf(msg.From))

	if msg.IsCommand() {
		if fn, ok := b.commandRoutes()[msg.Command()]; ok {
			metrics.IncTelegramCommand("/" + msg.Command())
			return fn(ctx, msg)
		}
		return b.SendMessage(ctx, msg.Chat.ID, b.translator.T("help"))
	}
	return b.handleText(ctx, msg)
}

// handleText covers the promo code step and otherwise forwards the text to
// the assistant.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	userID := userIDOf(msg.From)
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if !b.allow(ctx, userID) {
		return b.SendMessage(ctx, chatID, b.translator.T("rate_limited"))
	}

	state, err := b.states.GetState(ctx, userID)
	if err == nil && state != nil && state.Step == stepAwaitingPromo {
		return b.redeemPromo(ctx, chatID, userID, state, text)
	}

	_, _ = b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	reply, err := b.chat.Send(ctx, userID, text)
	switch {
	case errors.Is(err, domain.ErrNoActiveEntitlement):
		metrics.IncGateCheck(false)
		return b.SendMessage(ctx, chatID, b.translator.T("pay_required"))
	case errors.Is(err, domain.ErrEmptyMessage):
		return nil
	case err != nil:
		metrics.IncGateCheck(true)
		logging.With(ctx, b.log).Error().Err(err).Msg("chat turn failed")
		return b.SendMessage(ctx, chatID, b.translator.T("ai_error"))
	}
	metrics.IncGateCheck(true)
	return b.sendLong(ctx, chatID, stripMarkdown(reply))
}

func (b *Bot) allow(ctx context.Context, userID string) bool {
	if b.limiter == nil || b.opts.RateLimit <= 0 {
		return true
	}
	ok, err := b.limiter.Allow(ctx, "chat:"+userID, b.opts.RateLimit, b.opts.RateWindow)
	if err != nil {
		// fail open
		logging.With(ctx, b.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

// NotifyPaymentConfirmed tells the user in chat that a gateway payment went
// through. Users are keyed by their Telegram id.
func (b *Bot) NotifyPaymentConfirmed(ctx context.Context, rec *model.PaymentRecord) {
	chatID, err := strconv.ParseInt(rec.UserID, 10, 64)
	if err != nil {
		b.log.Warn().Str("user_id", rec.UserID).Msg("cannot notify non-telegram user")
		return
	}
	text := b.translator.T("payment_confirmed", b.formatTime(rec.ExpiresAt()))
	if err := b.SendMessage(ctx, chatID, text); err != nil {
		metrics.IncNotification("failed")
		b.log.Warn().Err(err).Str("user_id", rec.UserID).Int64("invoice_id", rec.InvoiceID).Msg("payment notification failed")
		return
	}
	metrics.IncNotification("sent")
}

// SendMessage sends plain text to a chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// InlineButton is a URL button when URL is set, otherwise a callback button.
type InlineButton struct {
	Text string
	Data string
	URL  string
}

// SendButtons sends text with an inline keyboard, one slice per row.
func (b *Bot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			if btn.URL != "" {
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			} else {
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			}
		}
		kbRows = append(kbRows, r)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendLong(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := b.SendMessage(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) formatTime(t time.Time) string {
	return t.In(b.opts.TimeLocation).Format("02.01.2006 15:04")
}

func userIDOf(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}
