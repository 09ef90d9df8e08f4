package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"gotus/internal/config"
)

const maxSessionBody = 64 << 10

// ErrProviderUnavailable is returned while the provider is failing or the
// breaker is open.
var ErrProviderUnavailable = errors.New("session provider unavailable")

type providerSession struct {
	User *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"user"`
	Expires time.Time `json:"expires"`
}

// SessionProviderResolver asks the third-party session provider who owns the
// request's cookies.
type SessionProviderResolver struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionProviderResolver(cfg config.SessionProviderConfig, client *http.Client, log zerolog.Logger) *SessionProviderResolver {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	path := cfg.SessionPath
	if path == "" {
		path = "/api/auth/session"
	}

	endpoint := ""
	if cfg.BaseURL != "" {
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "session-provider",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoIdentity)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &SessionProviderResolver{
		endpoint: endpoint,
		client:   client,
		breaker:  breaker,
		log:      log,
		now:      time.Now,
	}
}

func (p *SessionProviderResolver) Enabled() bool {
	return p.endpoint != ""
}

func (p *SessionProviderResolver) Resolve(ctx context.Context, r *http.Request) (*Caller, error) {
	if !p.Enabled() {
		return nil, ErrNoIdentity
	}
	cookies := r.Header.Get("Cookie")
	if cookies == "" {
		return nil, ErrNoIdentity
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, cookies)
	})
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			return nil, ErrNoIdentity
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		p.log.Warn().Err(err).Msg("session provider lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return &Caller{Kind: KindPublic, Public: result.(*PublicUser)}, nil
}

func (p *SessionProviderResolver) fetch(ctx context.Context, cookies string) (*PublicUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", cookies)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoIdentity
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("session provider returned %d", resp.StatusCode)
	}

	var session providerSession
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSessionBody)).Decode(&session); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoIdentity
		}
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.User == nil || session.User.Email == "" {
		return nil, ErrNoIdentity
	}
	if !session.Expires.IsZero() && !session.Expires.After(p.now()) {
		return nil, ErrNoIdentity
	}

	return &PublicUser{
		Email:   strings.ToLower(strings.TrimSpace(session.User.Email)),
		Name:    session.User.Name,
		Image:   session.User.Image,
		Expires: session.Expires,
	}, nil
}
