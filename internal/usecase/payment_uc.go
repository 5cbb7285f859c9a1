package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
	"telegram-ai-consult/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Checkout creates a pending intent for the tariff and returns the signed
	// gateway redirect URL together with the invoice id.
	Checkout(ctx context.Context, userID, tariffID string) (redirectURL string, invoiceID int64, err error)
	// ConfirmCallback verifies a gateway notification and, when every check
	// passes, appends a ledger record. Rejections are reported as errors:
	// ErrBadSignature, ErrUnknownInvoice, ErrAmountMismatch.
	ConfirmCallback(ctx context.Context, notice model.CallbackNotice) (*model.PaymentRecord, error)
	RedeemPromo(ctx context.Context, userID, tariffID, code string) (*model.PaymentRecord, error)
	SimulateCard(ctx context.Context, userID, tariffID string) (*model.PaymentRecord, error)

	IsEntitled(ctx context.Context, userID string) (bool, error)
	Entitlement(ctx context.Context, userID string) (model.Entitlement, error)
	History(ctx context.Context, userID string) ([]*model.PaymentRecord, error)

	// PruneStale drops pending intents older than olderThan.
	PruneStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PaymentOptions carries the knobs that come from configuration.
type PaymentOptions struct {
	PromoCodes      []string
	SimulatedCard   bool
	AmountTolerance decimal.Decimal
	Clock           Clock
}

type paymentUC struct {
	catalog   *TariffCatalog
	pending   repository.PendingPaymentRepository
	ledger    repository.LedgerRepository
	locker    repository.Locker
	gateway   adapter.PaymentGateway
	ids       adapter.InvoiceIDGenerator
	promo     map[string]struct{}
	card      bool
	tolerance decimal.Decimal
	clock     Clock
	log       *zerolog.Logger
}

var defaultAmountTolerance = decimal.New(1, -2)

func NewPaymentUseCase(
	catalog *TariffCatalog,
	pending repository.PendingPaymentRepository,
	ledger repository.LedgerRepository,
	locker repository.Locker,
	gateway adapter.PaymentGateway,
	ids adapter.InvoiceIDGenerator,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	promo := make(map[string]struct{}, len(opts.PromoCodes))
	for _, c := range opts.PromoCodes {
		if c = strings.TrimSpace(c); c != "" {
			promo[c] = struct{}{}
		}
	}
	tol := opts.AmountTolerance
	if tol.IsNegative() || tol.IsZero() {
		tol = defaultAmountTolerance
	}
	clk := opts.Clock
	if clk == nil {
		clk = SystemClock()
	}
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &paymentUC{
		catalog:   catalog,
		pending:   pending,
		ledger:    ledger,
		locker:    locker,
		gateway:   gateway,
		ids:       ids,
		promo:     promo,
		card:      opts.SimulatedCard,
		tolerance: tol,
		clock:     clk,
		log:       &l,
	}
}

func (u *paymentUC) Checkout(ctx context.Context, userID, tariffID string) (string, int64, error) {
	if strings.TrimSpace(userID) == "" {
		return "", 0, domain.ErrInvalidArgument
	}
	tariff, err := u.catalog.Tariff(tariffID)
	if err != nil {
		return "", 0, err
	}

	intent, err := u.createIntent(ctx, userID, tariff)
	if err != nil {
		return "", 0, err
	}

	payURL, err := u.gateway.CheckoutURL(intent.InvoiceID, intent.Amount, intent.Label)
	if err != nil {
		// the intent stays behind as an orphan; the pruner collects it
		return "", 0, err
	}

	u.log.Info().
		Str("user_id", userID).
		Str("tariff_id", tariff.ID).
		Int64("invoice_id", intent.InvoiceID).
		Str("amount", intent.Amount.StringFixed(2)).
		Msg("checkout created")
	return payURL, intent.InvoiceID, nil
}

// createIntent allocates a fresh invoice id and persists the pending intent.
// An id collision is a hard failure.
func (u *paymentUC) createIntent(ctx context.Context, userID string, tariff *model.Tariff) (*model.PaymentIntent, error) {
	id, err := u.ids.NextInvoiceID()
	if err != nil {
		return nil, err
	}
	intent := &model.PaymentIntent{
		InvoiceID: id,
		UserID:    userID,
		TariffID:  tariff.ID,
		Amount:    tariff.Price,
		Duration:  tariff.Duration,
		Label:     tariff.Label,
		CreatedAt: u.clock.Now(),
		Status:    model.PaymentStatusPending,
	}
	if err := u.pending.Create(ctx, intent); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			u.log.Error().Int64("invoice_id", id).Msg("invoice id collision")
		}
		return nil, err
	}
	return intent, nil
}

// ConfirmTimeout bounds the work done under an invoice lock. It must stay
// below the Redis lock TTL (30s).
const ConfirmTimeout = 20 * time.Second

func (u *paymentUC) ConfirmCallback(ctx context.Context, n model.CallbackNotice) (*model.PaymentRecord, error) {
	l := u.log.With().Int64("invoice_id", n.InvoiceID).Logger()

	amount, err := decimal.NewFromString(strings.TrimSpace(n.OutSum))
	if n.InvoiceID <= 0 || n.Signature == "" || err != nil {
		return nil, domain.ErrMalformedNotice
	}

	// 1. signature, before any state is touched
	if !u.gateway.VerifyCallback(n.OutSum, n.InvoiceID, n.Signature) {
		l.Warn().Str("out_sum", n.OutSum).Msg("callback signature mismatch")
		return nil, domain.ErrBadSignature
	}

	unlock, err := u.locker.Lock(ctx, InvoiceLockKey(n.InvoiceID))
	if err != nil {
		return nil, fmt.Errorf("%w: lock invoice: %v", domain.ErrStorage, err)
	}
	defer unlock()

	// From here on the caller going away must not stop us between consume
	// and append; the bound stays under the lock TTL.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ConfirmTimeout)
	defer cancel()

	// 2. consume; a replay or a foreign invoice finds nothing
	intent, err := u.pending.Consume(ctx, n.InvoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.Warn().Msg("callback for unknown or already confirmed invoice")
			return nil, domain.ErrUnknownInvoice
		}
		return nil, err
	}

	// 3. amount; the intent stays consumed on mismatch
	if amount.Sub(intent.Amount).Abs().GreaterThan(u.tolerance) {
		l.Error().
			Str("user_id", intent.UserID).
			Str("expected", intent.Amount.StringFixed(2)).
			Str("got", n.OutSum).
			Msg("callback amount mismatch; needs manual review")
		return nil, domain.ErrAmountMismatch
	}

	// 4. ledger
	rec := u.newRecord(intent.UserID, intent.InvoiceID, intent.Amount, model.PaymentMethodGateway, intent.Duration, intent.Label)
	if err := u.ledger.Append(ctx, rec); err != nil {
		// put the intent back so the gateway's retry can still confirm it
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), ConfirmTimeout)
		defer rcancel()
		if rerr := u.pending.Create(rctx, intent); rerr != nil {
			l.Error().Err(rerr).Msg("failed to restore pending intent after ledger failure")
		}
		l.Error().Err(err).Msg("ledger append failed")
		return nil, err
	}

	l.Info().
		Str("user_id", rec.UserID).
		Str("record_id", rec.ID).
		Dur("duration", rec.Duration).
		Msg("payment confirmed")
	return rec, nil
}

func (u *paymentUC) RedeemPromo(ctx context.Context, userID, tariffID, code string) (*model.PaymentRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	tariff, err := u.catalog.Tariff(tariffID)
	if err != nil {
		return nil, err
	}
	if _, ok := u.promo[strings.TrimSpace(code)]; !ok {
		u.log.Info().Str("user_id", userID).Msg("promo code rejected")
		return nil, domain.ErrInvalidCode
	}
	rec := u.newRecord(userID, 0, tariff.Price, model.PaymentMethodPromo, tariff.Duration, tariff.Label)
	if err := u.ledger.Append(ctx, rec); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("tariff_id", tariff.ID).Msg("promo code redeemed")
	return rec, nil
}

func (u *paymentUC) SimulateCard(ctx context.Context, userID, tariffID string) (*model.PaymentRecord, error) {
	if !u.card {
		return nil, domain.ErrMethodDisabled
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	tariff, err := u.catalog.Tariff(tariffID)
	if err != nil {
		return nil, err
	}
	rec := u.newRecord(userID, 0, tariff.Price, model.PaymentMethodCard, tariff.Duration, tariff.Label)
	if err := u.ledger.Append(ctx, rec); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("tariff_id", tariff.ID).Msg("simulated card payment recorded")
	return rec, nil
}

func (u *paymentUC) IsEntitled(ctx context.Context, userID string) (bool, error) {
	e, err := u.Entitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	return e.Active, nil
}

// Entitlement derives the user's state from the last ledger record only: a
// newer purchase replaces the remaining time of an older one.
func (u *paymentUC) Entitlement(ctx context.Context, userID string) (model.Entitlement, error) {
	e := model.Entitlement{UserID: userID}
	last, err := u.ledger.Last(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return e, nil
		}
		return e, err
	}
	e.Active = last.ActiveAt(u.clock.Now())
	e.Label = last.Label
	e.ExpiresAt = last.ExpiresAt()
	return e, nil
}

func (u *paymentUC) History(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	return u.ledger.ListByUser(ctx, userID)
}

func (u *paymentUC) PruneStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return u.pending.DeleteCreatedBefore(ctx, u.clock.Now().Add(-olderThan))
}

func (u *paymentUC) newRecord(userID string, invoiceID int64, amount decimal.Decimal, method model.PaymentMethod, d time.Duration, label string) *model.PaymentRecord {
	now := u.clock.Now()
	return &model.PaymentRecord{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:      userID,
		InvoiceID:   invoiceID,
		Amount:      amount,
		Method:      method,
		Duration:    d,
		Label:       label,
		ConfirmedAt: now,
	}
}

// InvoiceLockKey is the Locker key serializing confirmation of one invoice.
func InvoiceLockKey(invoiceID int64) string {
	return "invoice:" + strconv.FormatInt(invoiceID, 10)
}

// RejectReason maps a ConfirmCallback error to the short token returned to
// the gateway.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrMalformedNotice):
		return "malformed"
	case errors.Is(err, domain.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, domain.ErrUnknownInvoice):
		return "unknown_invoice"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	default:
		return "storage"
	}
}
