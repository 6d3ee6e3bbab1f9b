package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher fans a Response out to the sender of every recipient channel.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	observer func(Outcome)
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(log *slog.Logger, registry *Registry) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   log.With(slog.String("component", "dispatcher")),
	}
}

// SetObserver registers a callback invoked once per outcome after each dispatch.
func (d *Dispatcher) SetObserver(fn func(Outcome)) {
	d.observer = fn
}

// Dispatch delivers resp to every recipient concurrently and waits for all of them.
// It never fails as a whole; per-recipient results are reported in the returned Report.
// Cancellation of ctx is not propagated: once issued, sends run to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, resp Response) Report {
	ctx = context.WithoutCancel(ctx)
	results := make([][]Outcome, len(resp.Recipients))
	var wg sync.WaitGroup
	for i, to := range resp.Recipients {
		sender, ok := d.senderFor(to.Channel)
		if !ok {
			d.logger.Warn("unknown channel, recipient skipped",
				slog.String("channel", to.Channel.String()),
				slog.String("chat_id", to.ChatID.String()),
				slog.String("response_id", resp.ID))
			results[i] = []Outcome{{
				Channel: to.Channel,
				ChatID:  to.ChatID,
				Index:   RecipientLevel,
				Status:  StatusSkipped,
				Step:    "resolve",
				Err:     fmt.Errorf("%w: %s", ErrUnknownChannel, to.Channel),
			}}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("sender panicked",
						slog.String("channel", to.Channel.String()),
						slog.String("chat_id", to.ChatID.String()),
						slog.Any("panic", r))
					results[i] = []Outcome{{
						Channel: to.Channel,
						ChatID:  to.ChatID,
						Index:   RecipientLevel,
						Status:  StatusFailed,
						Step:    "deliver",
						Err:     fmt.Errorf("sender panic: %v", r),
					}}
				}
			}()
			results[i] = sender.Deliver(ctx, resp, to)
		}()
	}
	wg.Wait()

	var report Report
	for _, items := range results {
		report.Outcomes = append(report.Outcomes, items...)
	}
	if d.observer != nil {
		for _, o := range report.Outcomes {
			d.observer(o)
		}
	}
	d.logger.Debug("dispatch settled",
		slog.String("response_id", resp.ID),
		slog.Int("recipients", len(resp.Recipients)),
		slog.Int("delivered", report.Count(StatusDelivered)),
		slog.Int("failed", report.Count(StatusFailed)),
		slog.Int("skipped", report.Count(StatusSkipped)))
	return report
}

func (d *Dispatcher) senderFor(channelType ChannelType) (Sender, bool) {
	if d.registry == nil {
		return nil, false
	}
	return d.registry.GetSender(channelType)
}
