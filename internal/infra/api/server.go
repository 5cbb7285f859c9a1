package api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/infra/logging"
	"telegram-ai-consult/internal/infra/metrics"
	"telegram-ai-consult/internal/usecase"
)

// CallbackConfirmer is the slice of PaymentUseCase the HTTP layer drives.
type CallbackConfirmer interface {
	ConfirmCallback(ctx context.Context, notice model.CallbackNotice) (*model.PaymentRecord, error)
}

// Notifier is told about confirmed payments so the user hears about it in
// chat. It is called after the gateway response is written; wrap slow
// notifiers in AsyncNotifier.
type Notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, rec *model.PaymentRecord)
}

// Pinger reports storage health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the gateway result endpoint plus health, metrics and the
// user-facing success/fail pages.
type Server struct {
	payUC       CallbackConfirmer
	notifier    Notifier
	store       Pinger
	resultPath  string
	botUsername string
	auth        *AuthManager
	accounts    AccountReader
	now         func() time.Time
	log         *zerolog.Logger
}

type Options struct {
	ResultPath  string
	BotUsername string
	Notifier    Notifier
	Store       Pinger
	// Auth and Accounts together enable /admin.
	Auth     *AuthManager
	Accounts AccountReader
}

func NewServer(payUC CallbackConfirmer, opts Options, logger *zerolog.Logger) *Server {
	if opts.ResultPath == "" {
		opts.ResultPath = "/payment/result"
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		payUC:       payUC,
		notifier:    opts.Notifier,
		store:       opts.Store,
		resultPath:  opts.ResultPath,
		botUsername: opts.BotUsername,
		auth:        opts.Auth,
		accounts:    opts.Accounts,
		now:         time.Now,
		log:         &l,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log, s.resultPath), Timeout(15*time.Second))

	r.Get(s.resultPath, s.handleResult)
	r.Post(s.resultPath, s.handleResult)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/payment/success", func(w http.ResponseWriter, r *http.Request) {
		s.renderHTML(w, http.StatusOK, true, r.FormValue("InvId"))
	})
	r.Get("/payment/fail", func(w http.ResponseWriter, r *http.Request) {
		s.renderHTML(w, http.StatusOK, false, r.FormValue("InvId"))
	})
	if s.auth != nil && s.accounts != nil {
		s.mountAdmin(r)
	}
	return r
}

// ListenAndServe serves until ctx is done, then drains within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, port int, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Str("result_path", s.resultPath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

var signaturePattern = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)

// parseNotice reads InvId, OutSum and SignatureValue from the query string
// or a form body. OutSum is kept verbatim; the signature covers it as sent.
func parseNotice(r *http.Request) (model.CallbackNotice, bool) {
	if err := r.ParseForm(); err != nil {
		return model.CallbackNotice{}, false
	}
	invID, err := strconv.ParseInt(strings.TrimSpace(r.Form.Get("InvId")), 10, 64)
	if err != nil || invID <= 0 {
		return model.CallbackNotice{}, false
	}
	outSum := strings.TrimSpace(r.Form.Get("OutSum"))
	if _, err := decimal.NewFromString(outSum); err != nil {
		return model.CallbackNotice{}, false
	}
	sig := strings.TrimSpace(r.Form.Get("SignatureValue"))
	if !signaturePattern.MatchString(sig) {
		return model.CallbackNotice{}, false
	}
	return model.CallbackNotice{InvoiceID: invID, OutSum: outSum, Signature: sig}, true
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	notice, ok := parseNotice(r)
	if !ok {
		metrics.ObserveCallback("rejected", "malformed", time.Since(start).Seconds())
		writeText(w, http.StatusBadRequest, "ERROR: malformed")
		return
	}

	// a gateway hanging up mid-confirm must not leave the invoice half done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), usecase.ConfirmTimeout)
	defer cancel()
	ctx = logging.WithInvoiceID(ctx, notice.InvoiceID)
	l := logging.With(ctx, s.log)

	rec, err := s.payUC.ConfirmCallback(ctx, notice)
	if err != nil {
		reason := usecase.RejectReason(err)
		if reason == "storage" {
			// 5xx makes the gateway retry; the intent is still pending
			l.Error().Err(err).Msg("callback failed on storage")
			metrics.ObserveCallback("error", reason, time.Since(start).Seconds())
			writeText(w, http.StatusInternalServerError, "ERROR: storage")
			return
		}
		l.Warn().Str("reason", reason).Msg("callback rejected")
		metrics.ObserveCallback("rejected", reason, time.Since(start).Seconds())
		writeText(w, http.StatusBadRequest, "ERROR: "+reason)
		return
	}

	metrics.ObserveCallback("ok", "", time.Since(start).Seconds())
	metrics.IncPaymentConfirmed(string(rec.Method), rec.Amount)
	writeText(w, http.StatusOK, "OK"+strconv.FormatInt(notice.InvoiceID, 10))

	if s.notifier != nil {
		s.notifier.NotifyPaymentConfirmed(context.WithoutCancel(ctx), rec)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("health check: storage unavailable")
			writeText(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "OK")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

var page = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="ru">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{if .OK}}Оплата прошла{{else}}Оплата не завершена{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}✅ Оплата прошла{{else}}⚠️ Оплата не завершена{{end}}</h2>
  {{if .OK}}
    <p>Консультация станет доступна, как только платёжная система подтвердит платёж. Обычно это занимает несколько секунд.</p>
  {{else}}
    <p>Платёж не был завершён. Вы можете вернуться в бот и попробовать ещё раз.</p>
  {{end}}
  {{if .InvID}}<div class="small">Номер счёта: {{.InvID}}</div>{{end}}
  {{if .BotUsername}}
    <a class="btn" href="https://t.me/{{.BotUsername}}">Вернуться в Telegram</a>
  {{end}}
</div>
</body>
</html>`))

func (s *Server) renderHTML(w http.ResponseWriter, code int, ok bool, invID string) {
	if _, err := strconv.ParseInt(invID, 10, 64); err != nil {
		invID = ""
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, struct {
		OK          bool
		InvID       string
		BotUsername string
	}{
		OK:          ok,
		InvID:       invID,
		BotUsername: s.botUsername,
	})
}
