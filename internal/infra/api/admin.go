package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/infra/logging"
)

const adminRole = "admin"

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// ===== Admin JWT =====

type AuthManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint signs an HS256 admin token for subject.
func (a *AuthManager) Mint(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("admin secret not configured")
	}
	now := a.now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid || claims.Role != adminRole {
		return nil, errInvalidToken
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid admin token.
func (a *AuthManager) RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
				return
			}
			ctx := logging.WithUserID(r.Context(), "admin:"+claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ===== Admin routes =====

// AccountReader is the read side of PaymentUseCase the admin API exposes.
type AccountReader interface {
	Entitlement(ctx context.Context, userID string) (model.Entitlement, error)
	History(ctx context.Context, userID string) ([]*model.PaymentRecord, error)
}

type entitlementView struct {
	Active           bool       `json:"active"`
	Label            string     `json:"label,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

type paymentView struct {
	ID          string    `json:"id"`
	InvoiceID   int64     `json:"invoice_id,omitempty"`
	Method      string    `json:"method"`
	Amount      string    `json:"amount"`
	Duration    string    `json:"duration"`
	Label       string    `json:"label"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type accountView struct {
	UserID      string          `json:"user_id"`
	Entitlement entitlementView `json:"entitlement"`
	Payments    []paymentView   `json:"payments"`
}

func (s *Server) mountAdmin(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.auth.RequireAdmin())
		r.Get("/users/{userID}", s.handleAccount)
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user id required"})
		return
	}
	l := logging.With(r.Context(), s.log)

	ent, err := s.accounts.Entitlement(r.Context(), userID)
	if err != nil {
		l.Error().Err(err).Str("target_user", userID).Msg("admin: entitlement lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage"})
		return
	}
	history, err := s.accounts.History(r.Context(), userID)
	if err != nil {
		l.Error().Err(err).Str("target_user", userID).Msg("admin: history lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage"})
		return
	}

	view := accountView{
		UserID: userID,
		Entitlement: entitlementView{
			Active:           ent.Active,
			Label:            ent.Label,
			RemainingSeconds: int64(ent.Remaining(s.now()).Seconds()),
		},
		Payments: make([]paymentView, 0, len(history)),
	}
	if ent.Active {
		exp := ent.ExpiresAt
		view.Entitlement.ExpiresAt = &exp
	}
	for _, rec := range history {
		view.Payments = append(view.Payments, paymentView{
			ID:          rec.ID,
			InvoiceID:   rec.InvoiceID,
			Method:      string(rec.Method),
			Amount:      rec.Amount.StringFixed(2),
			Duration:    rec.Duration.String(),
			Label:       rec.Label,
			ConfirmedAt: rec.ConfirmedAt,
			ExpiresAt:   rec.ExpiresAt(),
		})
	}
	l.Info().Str("target_user", userID).Int("payments", len(view.Payments)).Msg("admin: account viewed")
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
