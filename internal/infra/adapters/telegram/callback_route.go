package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/ports/repository"
	"telegram-ai-consult/internal/infra/logging"
	"telegram-ai-consult/internal/infra/metrics"
)

const (
	cbTariff = "tariff:"
	cbPromo  = "promo"
	cbCard   = "card:"

	stepAwaitingPromo = "awaiting_promo"
)

type cbHandler func(ctx context.Context, chatID int64, userID, data string) error

func (b *Bot) cbPrefixRoutes() []struct {
	Prefix string
	Fn     cbHandler
} {
	return []struct {
		Prefix string
		Fn     cbHandler
	}{
		{Prefix: cbTariff, Fn: b.handleTariffCallback},
		{Prefix: cbCard, Fn: b.handleCardCallback},
		{Prefix: cbPromo, Fn: b.handlePromoCallback},
	}
}

func (b *Bot) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	// stop the client spinner
	defer func() { _, _ = b.api.Request(tgbotapi.NewCallback(query.ID, "")) }()

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	userID := userIDOf(query.From)
	ctx = logging.WithTgID(ctx, query.From.ID)
	ctx = logging.WithUserID(ctx, userID)

	data := strings.TrimSpace(query.Data)
	for _, r := range b.cbPrefixRoutes() {
		if strings.HasPrefix(data, r.Prefix) {
			return r.Fn(ctx, chatID, userID, data)
		}
	}
	return errors.New("unknown callback data")
}

// handleTariffCallback creates a pending intent and sends the gateway link.
func (b *Bot) handleTariffCallback(ctx context.Context, chatID int64, userID, data string) error {
	tariffID := strings.TrimPrefix(data, cbTariff)
	payURL, invoiceID, err := b.payments.Checkout(ctx, userID, tariffID)
	metrics.IncCheckout(tariffID, err == nil)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTariff) {
			return b.SendMessage(ctx, chatID, b.translator.T("unknown_tariff"))
		}
		logging.With(ctx, b.log).Error().Err(err).Str("tariff_id", tariffID).Msg("checkout failed")
		return b.SendMessage(ctx, chatID, b.translator.T("checkout_failed"))
	}

	t, err := b.catalog.Tariff(tariffID)
	if err != nil {
		return err
	}
	text := b.translator.T("checkout_created", invoiceID, t.Price.StringFixed(2), t.Label)
	rows := [][]InlineButton{{{Text: b.translator.T("btn_pay"), URL: payURL}}}
	return b.SendButtons(ctx, chatID, text, rows)
}

// handlePromoCallback asks for the code; the next text message is taken as
// the answer.
func (b *Bot) handlePromoCallback(ctx context.Context, chatID int64, userID, _ string) error {
	state := &repository.ConversationState{
		Step: stepAwaitingPromo,
		Data: map[string]string{"tariff_id": b.catalog.Default().ID},
	}
	if err := b.states.SetState(ctx, userID, state); err != nil {
		logging.With(ctx, b.log).Error().Err(err).Msg("failed to store promo state")
		return b.SendMessage(ctx, chatID, b.translator.T("error_generic"))
	}
	return b.SendMessage(ctx, chatID, b.translator.T("promo_prompt"))
}

func (b *Bot) handleCardCallback(ctx context.Context, chatID int64, userID, data string) error {
	tariffID := strings.TrimPrefix(data, cbCard)
	rec, err := b.payments.SimulateCard(ctx, userID, tariffID)
	if err != nil {
		logging.With(ctx, b.log).Warn().Err(err).Str("tariff_id", tariffID).Msg("simulated card payment refused")
		return b.SendMessage(ctx, chatID, b.translator.T("card_failed"))
	}
	metrics.IncPaymentConfirmed(string(rec.Method), rec.Amount)
	return b.SendMessage(ctx, chatID, b.translator.T("card_success"))
}

// redeemPromo consumes the awaiting_promo step whatever the outcome; a wrong
// code sends the user back to /start.
func (b *Bot) redeemPromo(ctx context.Context, chatID int64, userID string, state *repository.ConversationState, code string) error {
	if err := b.states.ClearState(ctx, userID); err != nil {
		logging.With(ctx, b.log).Warn().Err(err).Msg("failed to clear promo state")
	}
	tariffID := state.Data["tariff_id"]
	if tariffID == "" {
		tariffID = b.catalog.Default().ID
	}

	rec, err := b.payments.RedeemPromo(ctx, userID, tariffID, code)
	switch {
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrMethodDisabled):
		return b.SendMessage(ctx, chatID, b.translator.T("promo_invalid"))
	case err != nil:
		logging.With(ctx, b.log).Error().Err(err).Msg("promo redemption failed")
		return b.SendMessage(ctx, chatID, b.translator.T("error_generic"))
	}
	metrics.IncPaymentConfirmed(string(rec.Method), rec.Amount)
	return b.SendMessage(ctx, chatID, b.translator.T("promo_accepted"))
}
