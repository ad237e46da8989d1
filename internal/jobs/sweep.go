package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type challengeSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type sessionSweeper interface {
	ExpireIdle(ctx context.Context) (int64, error)
}

// SweepJob periodically expires unanswered challenges and sessions that
// outlived their maximum duration.
type SweepJob struct {
	challenges challengeSweeper
	sessions   sessionSweeper
	interval   time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

func NewSweepJob(challenges challengeSweeper, sessions sessionSweeper, interval time.Duration) *SweepJob {
	return &SweepJob{
		challenges: challenges,
		sessions:   sessions,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("sweep job stopped")
	})
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	if j.challenges != nil {
		j.runSweep(ctx, "stale challenges", j.challenges.ExpireStale)
	}
	if j.sessions != nil {
		j.runSweep(ctx, "idle sessions", j.sessions.ExpireIdle)
	}
}

func (j *SweepJob) runSweep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("swept %s", name)
	}
}
