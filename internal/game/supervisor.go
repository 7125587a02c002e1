package game

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Supervisor periodically abandons games that have seen no activity for
// longer than a threshold. Activity is the last move, or game creation
// when no move has been played.
type Supervisor struct {
	svc          *Service
	interval     time.Duration
	abandonAfter time.Duration
	logger       zerolog.Logger
}

type SupervisorOption func(*Supervisor)

func WithSupervisorLogger(logger zerolog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger }
}

func WithInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.interval = d }
}

func NewSupervisor(svc *Service, abandonAfter time.Duration, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		svc:          svc,
		interval:     time.Minute,
		abandonAfter: abandonAfter,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("abandonAfter", s.abandonAfter).
		Msg("Starting abandonment supervisor")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Stopping abandonment supervisor")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Abandonment sweep failed")
			}
		}
	}
}

// Sweep abandons every stale in-progress game and returns their IDs.
// The listing only picks candidates; each one is checked again under its
// game lock before it is abandoned.
func (s *Supervisor) Sweep(ctx context.Context) ([]string, error) {
	games, err := s.svc.InProgress(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.svc.now().Add(-s.abandonAfter)
	var abandoned []string
	for _, g := range games {
		lastActivity, err := s.svc.LastActivity(ctx, g)
		if err != nil {
			s.logger.Warn().Err(err).Str("gameID", g.ID).Msg("Skipping game")
			continue
		}
		if !lastActivity.Before(cutoff) {
			continue
		}

		if _, err := s.svc.AbandonIdle(ctx, g.ID, cutoff); err != nil {
			if errors.Is(err, ErrGameNotInProgress) || errors.Is(err, ErrGameActive) {
				s.logger.Debug().Err(err).Str("gameID", g.ID).Msg("Game changed since listing")
				continue
			}
			s.logger.Error().Err(err).Str("gameID", g.ID).Msg("Failed to abandon game")
			continue
		}
		s.logger.Info().
			Str("gameID", g.ID).
			Time("lastActivity", lastActivity).
			Msg("Abandoned inactive game")
		abandoned = append(abandoned, g.ID)
	}
	return abandoned, nil
}
