package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"gotus/internal/apperr"
	"gotus/internal/identity"
	"gotus/internal/models"
	"gotus/internal/security"
)

const (
	currentAccountKey = "current_account"
	sessionClaimsKey  = "session_claims"
	callerKey         = "caller"
)

// TokenVerifier checks a raw token's signature, expiry and revocation.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*security.SessionClaims, error)
}

// AccountLookup loads an account by id, returning a NotFound apperr when it
// does not exist.
type AccountLookup interface {
	Get(ctx context.Context, id string) (*models.Account, error)
}

// Identify resolves the caller through the chain and stores it on the
// context. Requests without an identity continue anonymously; downstream
// handlers decide whether that is acceptable.
func Identify(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := resolver.Resolve(c.Request.Context(), c.Request)
		if err == nil {
			c.Set(callerKey, caller)
			if caller.IsStaff() {
				c.Set(currentAccountKey, caller.Account)
			}
		} else if !errors.Is(err, identity.ErrNoIdentity) {
			c.Set(callerErrorKey, err)
		}
		c.Next()
	}
}

const callerErrorKey = "caller_error"

func CurrentCaller(c *gin.Context) (*identity.Caller, error) {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(*identity.Caller); ok {
			return caller, nil
		}
	}
	if v, ok := c.Get(callerErrorKey); ok {
		if err, ok := v.(error); ok {
			return nil, err
		}
	}
	return nil, identity.ErrNoIdentity
}

func CurrentAccount(c *gin.Context) (*models.Account, bool) {
	v, ok := c.Get(currentAccountKey)
	if !ok {
		return nil, false
	}
	account, ok := v.(*models.Account)
	return account, ok && account != nil
}

func SessionClaims(c *gin.Context) (*security.SessionClaims, bool) {
	v, ok := c.Get(sessionClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*security.SessionClaims)
	return claims, ok
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
}
