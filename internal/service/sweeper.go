package service

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

// AvatarSweeper periodically despawns idle avatars, then evicts overlays
// left with no avatars and no viewers.
type AvatarSweeper struct {
	svc      OverlayService
	interval time.Duration
	doneCh   chan struct{}
}

// NewAvatarSweeper creates a sweeper running every interval.
func NewAvatarSweeper(svc OverlayService, interval time.Duration) *AvatarSweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &AvatarSweeper{
		svc:      svc,
		interval: interval,
		doneCh:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run exits.
func (s *AvatarSweeper) Done() <-chan struct{} { return s.doneCh }

// Run sweeps until ctx is done.
func (s *AvatarSweeper) Run(ctx context.Context) {
	defer close(s.doneCh)

	l := log.L()
	l.Info().Dur("interval", s.interval).Msg("avatar sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.svc.SweepIdleAvatars(ctx, now)
			s.svc.EvictIdleStreamers(ctx)
		}
	}
}
