package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gotus/internal/apperr"
	"gotus/internal/identity"
	"gotus/internal/middleware"
	"gotus/internal/service"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      profileResponse `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (h HandlerSet) SignIn(c *gin.Context) {
	var req signInRequest
	if !h.bindJSON(c, &req) {
		return
	}

	session, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.sendSession(c, session)
}

func (h HandlerSet) Me(c *gin.Context) {
	account, err := h.auth.Me(c.Request.Context(), h.extract(c.Request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newProfile(account)})
}

// SignOut always clears the cookie. Revocation failures are logged, not
// surfaced: the client is signed out either way.
func (h HandlerSet) SignOut(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context(), h.extract(c.Request)); err != nil {
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("token revocation failed")
	}
	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	session, err := h.auth.Refresh(c.Request.Context(), h.extract(c.Request))
	if err != nil {
		if apperr.Is(err, apperr.KindAuthentication) {
			h.clearCookie(c)
		}
		h.respondError(c, err)
		return
	}
	h.sendSession(c, session)
}

// Session reports who the caller is, staff or public.
func (h HandlerSet) Session(c *gin.Context) {
	caller, err := middleware.CurrentCaller(c)
	switch {
	case errors.Is(err, identity.ErrNoIdentity):
		h.respondError(c, service.ErrNotAuthenticated)
		return
	case errors.Is(err, identity.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session provider unavailable"})
		return
	case err != nil:
		h.respondError(c, err)
		return
	}

	if caller.IsStaff() {
		c.JSON(http.StatusOK, gin.H{"kind": caller.Kind, "user": newProfile(caller.Account)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": caller.Kind, "user": caller.Public})
}

func (h HandlerSet) sendSession(c *gin.Context, session *service.Session) {
	h.setCookie(c, session.Token)
	c.JSON(http.StatusOK, sessionResponse{
		User:      newProfile(session.Account),
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h HandlerSet) setCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Security.CookieName, token, int(h.auth.TokenTTL().Seconds()), "/", "", h.cfg.IsProduction(), true)
}

func (h HandlerSet) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Security.CookieName, "", -1, "/", "", h.cfg.IsProduction(), true)
}
