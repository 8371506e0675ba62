package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"docchat/internal/platform/logger"
)

// StaleChats is the part of the chat service the sweeper drives.
type StaleChats interface {
	ExpireProcessing(ctx context.Context, lease time.Duration) (int, error)
	RepublishAwaiting(ctx context.Context, after time.Duration) (int, error)
}

// Sweeper periodically fails chats whose worker died mid-processing and
// re-publishes chats whose notification was lost.
type Sweeper struct {
	log            *logger.Logger
	chats          StaleChats
	lease          time.Duration
	republishAfter time.Duration
	cron           *cron.Cron
}

func NewSweeper(log *logger.Logger, chats StaleChats, lease, republishAfter time.Duration) *Sweeper {
	return &Sweeper{
		log:            log.With("service", "Sweeper"),
		chats:          chats,
		lease:          lease,
		republishAfter: republishAfter,
		cron:           cron.New(),
	}
}

func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweeper failed: %w", err)
	}
	s.cron.Start()
	s.log.Info("sweeper started", "schedule", schedule)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, err := s.chats.ExpireProcessing(ctx, s.lease)
	if err != nil {
		s.log.Error("expire processing chats failed", "error", err)
	}
	republished, err := s.chats.RepublishAwaiting(ctx, s.republishAfter)
	if err != nil {
		s.log.Error("republish awaiting chats failed", "error", err)
	}
	if expired > 0 || republished > 0 {
		s.log.Warn("sweeper recovered chats", "expired", expired, "republished", republished)
	}
}
