package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lumenlms/authcore"
	"github.com/lumenlms/authcore/middleware"
)

// Server holds the handler dependencies. Construct it with [NewServer] and
// mount it via [NewRouter].
type Server struct {
	engine *authcore.Engine
	logger *slog.Logger

	healthProbes []func(ctx context.Context) error
}

// NewServer wires handlers around the engine. probes are optional readiness
// checks (mongo ping, redis ping) surfaced by /healthz.
func NewServer(engine *authcore.Engine, logger *slog.Logger, probes ...func(ctx context.Context) error) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger, healthProbes: probes}
}

// engineCtx threads the caller's IP and device description into the
// context so the engine can feed its lockout counters and audit trail.
func engineCtx(r *http.Request) *http.Request {
	ctx := authcore.WithClientIP(r.Context(), clientIP(r))
	if device := r.Header.Get("X-Device"); device != "" {
		ctx = authcore.WithDevice(ctx, device)
	} else if ua := r.UserAgent(); ua != "" {
		ctx = authcore.WithDevice(ctx, ua)
	}
	return r.WithContext(ctx)
}

func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	status, err := s.engine.CheckEmail(r.Context(), req.Email)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{
		"exists":   status.Exists,
		"verified": status.Verified,
	})
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	if err := s.engine.SendVerification(r.Context(), req.Email, req.Name); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleVerifyEmailCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	result, err := s.engine.VerifyEmailCode(r.Context(), req.Email, req.Code)
	if errors.Is(err, authcore.ErrInvalidCode) && result != nil {
		// Wrong code with attempts left. The caller needs the remaining
		// budget to render the countdown, so this is a 200, not an error.
		writeData(w, http.StatusOK, map[string]any{
			"verified":          false,
			"remainingAttempts": result.RemainingAttempts,
		})
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"verified": true})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string        `json:"name"`
		Email    string        `json:"email"`
		Password string        `json:"password"`
		Role     authcore.Role `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	result, err := s.engine.Register(r.Context(), authcore.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{
		"user":         result.Account,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	result, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if result.TwoFactorRequired {
		writeData(w, http.StatusOK, map[string]any{
			"twoFactorRequired": true,
			"tempToken":         result.TempToken,
		})
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"user":         result.Account,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (s *Server) handleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TempToken string `json:"tempToken"`
		Code      string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	result, err := s.engine.VerifyTwoFactor(r.Context(), req.TempToken, req.Code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"user":         result.Account,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	result, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"user":         result.Account,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

// handleLogout always reports success: the client is abandoning its tokens
// either way, and an unparseable or already-dead refresh token changes
// nothing server-side.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		s.logger.Warn("logout failed", slog.String("error", err.Error()))
	}
	writeData(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthenticated, "unauthenticated")
		return
	}

	count, err := s.engine.LogoutAll(r.Context(), principal.Account.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"sessionsRevoked": count})
}

// handleForgotPassword responds identically whether or not the email maps
// to an account, so the endpoint cannot be used to enumerate users.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	if err := s.engine.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthenticated, "unauthenticated")
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	r = engineCtx(r)
	if err := s.engine.ChangePassword(r.Context(), principal.Account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"changed": true})
}

func (s *Server) handleSetTwoFactor(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthenticated, "unauthenticated")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	if err := s.engine.SetTwoFactor(r.Context(), principal.Account.ID, req.Enabled); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"twoFactorEnabled": req.Enabled})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthenticated, "unauthenticated")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": principal.Account})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthenticated, "unauthenticated")
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"role":        principal.Account.Role,
		"permissions": s.engine.Permissions(principal.Account.Role),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	for _, probe := range s.healthProbes {
		if err := probe(r.Context()); err != nil {
			s.logger.Warn("health probe failed", slog.String("error", err.Error()))
			writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "dependency unavailable")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
