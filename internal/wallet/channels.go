package wallet

import (
	"context"
	"log/slog"
)

// Allocator selects and rotates the external payment channels that receive
// deposits. The policy is fill-then-rotate: traffic concentrates on the
// lowest-id eligible channel until its counter reaches rotateAfter, then
// moves to the next. When every channel is saturated the counters are reset
// globally and selection starts over from the lowest id. The reset is
// triggered by exhaustion only, never by wall-clock day boundaries.
type Allocator struct {
	logger *slog.Logger
}

func NewAllocator(logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{logger: logger}
}

// SelectActive returns the lowest-id channel whose todayCount is below its
// rotateAfter threshold. If no channel qualifies but channels exist, it
// resets every counter to zero and returns the lowest-id channel. It fails
// with ErrNoChannelAvailable only when no channel is provisioned at all.
func (a *Allocator) SelectActive(ctx context.Context, tx Tx) (*Channel, error) {
	ch, err := tx.FirstEligibleChannel(ctx)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		return ch, nil
	}

	n, err := tx.CountChannels(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoChannelAvailable
	}

	if err := tx.ResetChannelCounters(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("channel counters reset", "channels", n)

	return tx.FirstChannel(ctx)
}

// RecordUsage increments a channel's counter after a deposit settles on it.
// Crossing rotateAfter is logged as an observability signal only; selection
// and usage recording are separate steps, so a channel may absorb one more
// deposit after crossing the threshold.
func (a *Allocator) RecordUsage(ctx context.Context, tx Tx, channelID int64) error {
	ch, err := tx.IncrementChannelUsage(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.TodayCount >= ch.RotateAfter {
		a.logger.Info("channel reached rotation threshold",
			"channel_id", ch.ID,
			"external_ref", ch.ExternalRef,
			"today_count", ch.TodayCount,
			"rotate_after", ch.RotateAfter,
		)
	}
	return nil
}
