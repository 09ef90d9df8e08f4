package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gotus/internal/apperr"
	"gotus/internal/models"
	"gotus/internal/security"
)

var (
	ErrAdminInactive = apperr.Authorization("Admin account is inactive")
	ErrAdminRequired = apperr.Authorization("Admin access required")
)

// AdminGate guards the user management routes. Order matters: a bad token is
// 401, a token whose account is gone or disabled is 403 inactive, and an
// active non-admin is 403 admin required. The account is re-read on every
// request so deactivation takes effect before the token expires.
func AdminGate(extract security.TokenExtractor, tokens TokenVerifier, accounts AccountLookup, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		claims, err := tokens.VerifyToken(ctx, extract(c.Request))
		if err != nil {
			abortWithError(c, err)
			return
		}

		account, err := accounts.Get(ctx, claims.UserID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				abortWithError(c, ErrAdminInactive)
				return
			}
			log.Error().Err(err).Str("request_id", c.Writer.Header().Get(requestIDHeader)).Msg("admin gate lookup failed")
			abortWithError(c, err)
			return
		}
		if !account.IsActive {
			abortWithError(c, ErrAdminInactive)
			return
		}
		if account.Role != models.RoleAdmin {
			abortWithError(c, ErrAdminRequired)
			return
		}

		c.Set(sessionClaimsKey, claims)
		c.Set(currentAccountKey, account)
		c.Next()
	}
}
