package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"gotus/internal/events"
	"gotus/internal/models"
	"gotus/internal/repository"
	"gotus/internal/security"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func fastHash(password string) (string, error) {
	return security.HashPasswordWithParams(password, security.Argon2Params{
		Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16,
	})
}

type fixture struct {
	repo      *repository.MemoryAccountRepository
	directory *DirectoryService
	published *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryAccountRepository()
	pub := &recordingPublisher{}
	dir := NewDirectoryService(repo, nil, pub, DirectoryConfig{Hasher: fastHash}, zerolog.Nop())
	dir.now = tickingClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	return &fixture{repo: repo, directory: dir, published: pub}
}

func (f *fixture) admin(t *testing.T, email string) *models.Account {
	t.Helper()
	a, err := f.directory.Create(context.Background(), "", CreateAccountInput{
		Email:     email,
		Password:  "admin123",
		FirstName: "Ada",
		LastName:  "Admin",
		Role:      models.RoleAdmin,
	})
	require.NoError(t, err)
	return a
}

func fullAddress() *models.Address {
	return &models.Address{Province: "Bagmati", District: "Lalitpur", Municipality: "Lalitpur Metro", Ward: "3"}
}

func officerInput(email string) CreateAccountInput {
	return CreateAccountInput{
		Email:      email,
		Password:   "officer123",
		FirstName:  "Ram",
		LastName:   "Thapa",
		Role:       models.RoleOfficer,
		Department: "Patrol",
		Address:    fullAddress(),
	}
}

// tickingClock advances one second per reading so creation order is stable.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func ptr[T any](v T) *T { return &v }
