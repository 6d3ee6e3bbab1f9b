package channelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/healthcheck"
)

const checkTypeChannelDelivery = "channel.delivery"

// ChannelLister lists the channels the relay can deliver to.
type ChannelLister interface {
	Types() []channel.ChannelType
}

// DeliveryObserver reads the last recorded delivery state of a channel.
type DeliveryObserver interface {
	Snapshot(channelType channel.ChannelType) (DeliveryState, bool)
}

// Checker evaluates channel delivery health checks.
type Checker struct {
	logger   *slog.Logger
	channels ChannelLister
	observer DeliveryObserver
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, channels ChannelLister, observer DeliveryObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		channels: channels,
		observer: observer,
	}
}

// ListChecks returns one check per registered channel, graded by its last delivery.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if c.channels == nil || c.observer == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable")
		return []healthcheck.CheckResult{
			{
				ID:      checkTypeChannelDelivery + ".service",
				Type:    checkTypeChannelDelivery,
				Status:  healthcheck.StatusWarn,
				Summary: "Channel checker service is not available.",
				Detail:  "channel registry or delivery observer is nil",
			},
		}
	}

	types := c.channels.Types()
	checks := make([]healthcheck.CheckResult, 0, len(types))
	for _, ct := range types {
		name := strings.TrimSpace(ct.String())
		item := healthcheck.CheckResult{
			ID:       checkTypeChannelDelivery + "." + name,
			Type:     checkTypeChannelDelivery,
			Subtitle: name,
			Status:   healthcheck.StatusUnknown,
			Summary:  fmt.Sprintf("Channel %s has no deliveries yet.", name),
			Metadata: map[string]any{"channel_type": name},
		}
		state, ok := c.observer.Snapshot(ct)
		if ok {
			item.Metadata["delivered"] = state.Delivered
			item.Metadata["failed"] = state.Failed
			item.Metadata["skipped"] = state.Skipped
			item.Metadata["last_step"] = state.Step
			if !state.UpdatedAt.IsZero() {
				item.Metadata["updated_at"] = state.UpdatedAt.Format("2006-01-02T15:04:05Z")
			}
			switch state.Status {
			case channel.StatusDelivered:
				item.Status = healthcheck.StatusOK
				item.Summary = fmt.Sprintf("Channel %s delivered its last message.", name)
			case channel.StatusFailed:
				item.Status = healthcheck.StatusError
				item.Summary = fmt.Sprintf("Channel %s failed its last delivery.", name)
				item.Detail = state.LastError
			case channel.StatusSkipped:
				item.Status = healthcheck.StatusWarn
				item.Summary = fmt.Sprintf("Channel %s skipped its last message.", name)
				item.Detail = state.LastError
			}
		}
		checks = append(checks, item)
	}
	return checks
}
