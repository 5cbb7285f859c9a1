package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var _ API = (*NoopAPI)(nil)

// NoopAPI implements API for local runs without a bot token. It logs what
// would have been sent and never delivers updates.
type NoopAPI struct {
	log *zerolog.Logger

	once    sync.Once
	updates chan tgbotapi.Update
}

func NewNoopAPI(logger *zerolog.Logger) *NoopAPI {
	l := logger.With().Str("component", "NoopTelegram").Logger()
	return &NoopAPI{log: &l, updates: make(chan tgbotapi.Update)}
}

func (n *NoopAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	ev := n.log.Info()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		ev = ev.Int64("chat_id", m.ChatID).Str("text", m.Text)
	}
	ev.Msg("send")
	return tgbotapi.Message{}, nil
}

func (n *NoopAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (n *NoopAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return n.updates
}

func (n *NoopAPI) StopReceivingUpdates() {
	n.once.Do(func() { close(n.updates) })
}
