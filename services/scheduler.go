package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartExpiryScheduler runs CloseExpiredChallenges once a minute until the
// returned scheduler is shut down.
func (s *ChallengeService) StartExpiryScheduler(ctx context.Context, every time.Duration) (gocron.Scheduler, error) {
	if every <= 0 {
		every = time.Minute
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(s.Clock))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if _, err := s.CloseExpiredChallenges(ctx); err != nil {
				s.log.Error("scheduler: closing expired challenges failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
