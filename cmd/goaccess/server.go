package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/metrics/export/prometheus"
	"github.com/MrEthical07/goAccess/middleware"
	validation "github.com/go-ozzo/ozzo-validation"
)

// server holds the HTTP handlers of the serve command.
type server struct {
	engine *goAccess.Engine
	logger *slog.Logger
	opts   middleware.Options
}

func newServer(engine *goAccess.Engine, logger *slog.Logger, s *Settings) *server {
	return &server{
		engine: engine,
		logger: logger,
		opts: middleware.Options{
			TrustForwardedFor: s.TrustForwardedFor,
			AllowBearer:       s.AllowBearer,
		},
	}
}

func (s *server) routes() http.Handler {
	auth := middleware.RequireAuth(s.engine)
	fresh := middleware.RequireFresh(s.engine)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /activate/{token}", s.handleActivate)
	mux.HandleFunc("POST /activate/resend", s.handleResend)
	mux.Handle("GET /me", auth(http.HandlerFunc(s.handleMe)))
	mux.Handle("POST /me/password", fresh(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("POST /me/sessions/revoke", fresh(http.HandlerFunc(s.handleRevokeSessions)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", prometheus.NewCollector(s.engine).Handler())

	return middleware.Session(s.engine, s.opts)(mux)
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Register(r.Context(), goAccess.RegisterRequest{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	switch {
	case err == nil:
	case errors.Is(err, goAccess.ErrRegistrationInvalid):
		var fields validation.Errors
		errors.As(err, &fields)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid registration", "fields": fieldMessages(fields)})
		return
	case errors.Is(err, goAccess.ErrUsernameTaken), errors.Is(err, goAccess.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	case errors.Is(err, goAccess.ErrRegistrationDisabled):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": err.Error()})
		return
	default:
		s.internalError(w, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      res.Account.ID,
		"message": "Check your mailbox for the activation link.",
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Login(r.Context(), goAccess.LoginRequest{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Remember: r.PostFormValue("remember") != "",
		Next:     r.PostFormValue("next"),
	})
	if err != nil {
		s.internalError(w, "login", err)
		return
	}
	if !out.Succeeded() {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid username or password"})
		return
	}

	middleware.SetSessionCookie(w, s.engine.Config().Session, out)
	http.Redirect(w, r, out.RedirectTo, http.StatusSeeOther)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cp := goAccess.CurrentPrincipalFromContext(r.Context()); cp != nil {
		token = cp.Token()
	}
	s.engine.Logout(r.Context(), token)

	cfg := s.engine.Config().Session
	middleware.ClearSessionCookie(w, cfg)
	http.Redirect(w, r, cfg.DefaultRedirect, http.StatusSeeOther)
}

func (s *server) handleActivate(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.RedeemActivation(r.Context(), r.PathValue("token"))
	if err != nil {
		s.internalError(w, "activate", err)
		return
	}
	if out.Status != goAccess.ActivationConfirmed {
		s.logger.Info("activation refused", "status", out.Status.String(), "reason", out.Reason)
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": out.PublicMessage()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": out.PublicMessage()})
}

func (s *server) handleResend(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResendActivation(r.Context(), r.PostFormValue("email")); err != nil {
		s.internalError(w, "resend_activation", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "If the address is registered and not yet active, a new link is on its way."})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := goAccess.PrincipalFromContext(r.Context())
	acct, _ := p.Account()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       acct.ID,
		"username": acct.Username,
		"email":    acct.Email,
		"fresh":    p.Fresh(),
	})
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	acct, _ := goAccess.PrincipalFromContext(r.Context()).Account()

	err := s.engine.ChangePassword(r.Context(), acct.ID, r.PostFormValue("current"), r.PostFormValue("new"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"message": "password changed"})
	case errors.Is(err, goAccess.ErrInvalidCredentials):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "current password is wrong"})
	case errors.Is(err, goAccess.ErrPasswordPolicy):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		s.internalError(w, "change_password", err)
	}
}

func (s *server) handleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	acct, _ := goAccess.PrincipalFromContext(r.Context()).Account()

	n, err := s.engine.LogoutAll(r.Context(), acct.ID)
	if err != nil {
		s.internalError(w, "logout_all", err)
		return
	}
	middleware.ClearSessionCookie(w, s.engine.Config().Session)
	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latency, err := s.engine.Ping(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"redis_latency": latency.Round(time.Microsecond).String(),
	})
}

func (s *server) internalError(w http.ResponseWriter, operation string, err error) {
	s.logger.Error("request failed", "operation", operation, "error", err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "service unavailable"})
}

func fieldMessages(errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		if err != nil {
			out[field] = err.Error()
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
