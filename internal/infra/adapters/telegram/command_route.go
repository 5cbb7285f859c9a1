package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-ai-consult/internal/infra/logging"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (b *Bot) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":  b.handleStartCommand,
		"new":    b.handleNewCommand,
		"exit":   b.handleExitCommand,
		"stop":   b.handleExitCommand,
		"status": b.handleStatusCommand,
		"help":   b.handleHelpCommand,
	}
}

// handleStartCommand greets the user. Entitled users go straight to the
// chat; everyone else gets the payment keyboard.
func (b *Bot) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	userID := userIDOf(message.From)
	_ = b.states.ClearState(ctx, userID)

	name := message.From.FirstName
	if name == "" {
		name = b.translator.T("default_name")
	}

	ent, err := b.payments.Entitlement(ctx, userID)
	if err != nil {
		logging.With(ctx, b.log).Error().Err(err).Msg("entitlement lookup failed")
		return b.SendMessage(ctx, message.Chat.ID, b.translator.T("error_generic"))
	}
	if ent.Active {
		return b.SendMessage(ctx, message.Chat.ID, b.translator.T("welcome_active", name, b.formatTime(ent.ExpiresAt)))
	}
	return b.SendButtons(ctx, message.Chat.ID, b.translator.T("welcome_pay", name), b.paymentKeyboard())
}

// handleNewCommand starts a fresh consultation. The entitlement is left alone.
func (b *Bot) handleNewCommand(ctx context.Context, message *tgbotapi.Message) error {
	if err := b.chat.Reset(ctx, userIDOf(message.From)); err != nil {
		logging.With(ctx, b.log).Error().Err(err).Msg("conversation reset failed")
		return b.SendMessage(ctx, message.Chat.ID, b.translator.T("error_generic"))
	}
	return b.SendMessage(ctx, message.Chat.ID, b.translator.T("new_session"))
}

func (b *Bot) handleExitCommand(ctx context.Context, message *tgbotapi.Message) error {
	_ = b.states.ClearState(ctx, userIDOf(message.From))
	return b.SendMessage(ctx, message.Chat.ID, b.translator.T("goodbye"))
}

func (b *Bot) handleStatusCommand(ctx context.Context, message *tgbotapi.Message) error {
	ent, err := b.payments.Entitlement(ctx, userIDOf(message.From))
	if err != nil {
		return b.SendMessage(ctx, message.Chat.ID, b.translator.T("error_generic"))
	}
	if !ent.Active {
		return b.SendMessage(ctx, message.Chat.ID, b.translator.T("status_inactive"))
	}
	left := formatRemaining(ent.Remaining(time.Now()))
	return b.SendMessage(ctx, message.Chat.ID, b.translator.T("status_active", b.formatTime(ent.ExpiresAt), left))
}

func (b *Bot) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return b.SendMessage(ctx, message.Chat.ID, b.translator.T("help"))
}

// paymentKeyboard lists one checkout button per tariff, then the promo and
// simulated card options when they are enabled.
func (b *Bot) paymentKeyboard() [][]InlineButton {
	tariffs := b.catalog.List()
	rows := make([][]InlineButton, 0, len(tariffs)+2)
	for _, t := range tariffs {
		rows = append(rows, []InlineButton{{
			Text: b.translator.T("btn_tariff", t.Label, t.Price.StringFixed(2)),
			Data: cbTariff + t.ID,
		}})
	}
	if b.opts.PromoEnabled {
		rows = append(rows, []InlineButton{{Text: b.translator.T("btn_promo"), Data: cbPromo}})
	}
	if b.opts.CardEnabled {
		rows = append(rows, []InlineButton{{Text: b.translator.T("btn_card"), Data: cbCard + b.catalog.Default().ID}})
	}
	return rows
}
