package usecase

import (
	"context"

	"github.com/rs/zerolog"
)

// EntitlementChecker is the slice of PaymentUseCase the gate depends on.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}

// ConversationGate is the single predicate consulted before a user message
// is forwarded to the LLM. It holds no cache: entitlements expire mid-chat,
// so every call goes back to the ledger.
type ConversationGate struct {
	payments EntitlementChecker
	log      *zerolog.Logger
}

func NewConversationGate(payments EntitlementChecker, logger *zerolog.Logger) *ConversationGate {
	l := logger.With().Str("component", "ConversationGate").Logger()
	return &ConversationGate{payments: payments, log: &l}
}

// CanConverse reports whether userID may talk to the assistant right now.
// Storage errors deny access.
func (g *ConversationGate) CanConverse(ctx context.Context, userID string) bool {
	ok, err := g.payments.IsEntitled(ctx, userID)
	if err != nil {
		g.log.Error().Err(err).Str("user_id", userID).Msg("entitlement lookup failed")
		return false
	}
	return ok
}
