// Package telegramruntime holds small runtime helpers shared by the
// Telegram client: randomized, context-aware waits between paginated API
// calls, kept from the base userbot's throttling approach since gotd's
// MTProto flood limits punish tight dialog/history polling loops the same
// way regardless of what the caller is fetching.
package telegramruntime

import (
	"context"
	"math/rand/v2"
	"time"

	"feedbot/internal/infra/logger"
)

const (
	defaultWaitMinMs = 1111
	defaultWaitMaxMs = 3333
)

// WaitRandomTimeMs blocks the current goroutine for a pseudo-random
// duration in [minMs, maxMs), returning early if ctx is cancelled.
// minMs==maxMs==0 selects the package defaults.
func WaitRandomTimeMs(ctx context.Context, minMs, maxMs int) {
	switch {
	case minMs == 0 && maxMs == 0:
		minMs = defaultWaitMinMs
		maxMs = defaultWaitMaxMs
	case minMs <= 0:
		logger.Error("WaitRandomTimeMs: wait time <= 0")
		return
	case maxMs < minMs:
		logger.Error("WaitRandomTimeMs: max < min")
		return
	}

	delta := maxMs
	if maxMs > minMs {
		delta = rand.IntN(maxMs-minMs) + minMs
	}
	delay := time.Duration(delta) * time.Millisecond

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return
	case <-timer.C:
		return
	}
}

// WaitRandomTime is WaitRandomTimeMs with the package defaults.
func WaitRandomTime(ctx context.Context) {
	WaitRandomTimeMs(ctx, 0, 0)
}
