package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type paymentSweeper interface {
	ExpirePendingPayments(ctx context.Context) (int, error)
	CompleteFinishedBookings(ctx context.Context) (int, error)
}

type inquirySweeper interface {
	ExpireStaleInquiries(ctx context.Context) (int, error)
}

// Sweeper periodically applies time-driven transitions: payment expiry, completion and inquiry expiry.
type Sweeper struct {
	bookings  paymentSweeper
	inquiries inquirySweeper
	interval  time.Duration
	logger    *zerolog.Logger
}

func NewSweeper(bookings paymentSweeper, inquiries inquirySweeper, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Sweeper{
		bookings:  bookings,
		inquiries: inquiries,
		interval:  interval,
		logger:    logger,
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Sweeper started")
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes every sweep; a failing sweep does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.run(ctx, "payment_expiry", s.bookings.ExpirePendingPayments)
	s.run(ctx, "completion", s.bookings.CompleteFinishedBookings)
	if s.inquiries != nil {
		s.run(ctx, "inquiry_expiry", s.inquiries.ExpireStaleInquiries)
	}
}

func (s *Sweeper) run(ctx context.Context, kind string, fn func(context.Context) (int, error)) {
	n, err := fn(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("Sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Str("kind", kind).Int("records", n).Msg("Sweep applied")
	}
}
