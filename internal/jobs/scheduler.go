package jobs

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"gotus/internal/events"
	"gotus/internal/models"
	"gotus/internal/service"
)

const (
	DefaultCensusSpec = "0 0 * * * *"
	purgeSpec         = "0 30 3 * * *" // daily, off the hour
	jobTimeout        = 30 * time.Second
)

type CensusSource interface {
	Census(ctx context.Context) (service.Census, error)
}

// RevocationPurger drops denylist rows whose tokens have expired anyway.
type RevocationPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron       *cron.Cron
	census     CensusSource
	purger     RevocationPurger
	events     events.Publisher
	log        zerolog.Logger
	censusSpec string
}

// NewScheduler runs the directory census on censusSpec (six fields, seconds
// first). purger may be nil.
func NewScheduler(census CensusSource, purger RevocationPurger, publisher events.Publisher, censusSpec string, log zerolog.Logger) *Scheduler {
	if censusSpec == "" {
		censusSpec = DefaultCensusSpec
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{
		cron:       c,
		census:     census,
		purger:     purger,
		events:     publisher,
		log:        log,
		censusSpec: censusSpec,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.censusSpec, s.censusJob); err != nil {
		return err
	}
	if s.purger != nil {
		if _, err := s.cron.AddFunc(purgeSpec, s.purgeJob); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) censusJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.RunCensus(ctx); err != nil {
		s.log.Error().Err(err).Msg("directory census failed")
	}
}

// RunCensus counts the directory, warns when no active admin is left and
// publishes the figures.
func (s *Scheduler) RunCensus(ctx context.Context) (service.Census, error) {
	census, err := s.census.Census(ctx)
	if err != nil {
		return service.Census{}, err
	}

	if census.ActiveAdmins == 0 {
		s.log.Warn().Msg("directory has no active admin; user management is locked out")
	}

	data := map[string]string{
		"active":       strconv.FormatInt(census.Active, 10),
		"disabled":     strconv.FormatInt(census.Disabled, 10),
		"activeAdmins": strconv.FormatInt(census.ActiveAdmins, 10),
	}
	for _, role := range models.AllRoles() {
		data["role."+string(role)] = strconv.FormatInt(census.ByRole[role], 10)
	}
	events.Emit(ctx, s.events, s.log, events.Event{Type: events.TypeDirectoryCensus, Data: data})

	s.log.Info().
		Int64("active", census.Active).
		Int64("disabled", census.Disabled).
		Int64("active_admins", census.ActiveAdmins).
		Msg("directory census")
	return census, nil
}

func (s *Scheduler) purgeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge revoked tokens failed")
		return
	}
	s.log.Debug().Int64("purged", n).Msg("revoked tokens purged")
}
