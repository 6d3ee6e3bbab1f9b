package channelchecker

import (
	"strings"
	"sync"
	"time"

	"github.com/memohai/relay/internal/channel"
)

// DeliveryState summarizes the deliveries seen on one channel.
type DeliveryState struct {
	Channel   channel.ChannelType
	Status    channel.Status
	Step      string
	LastError string
	UpdatedAt time.Time
	Delivered int
	Failed    int
	Skipped   int
}

// Tracker records dispatch outcomes per channel. Its Observe method is used as the dispatcher observer.
type Tracker struct {
	mu     sync.RWMutex
	states map[channel.ChannelType]*DeliveryState
	now    func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		states: map[channel.ChannelType]*DeliveryState{},
		now:    time.Now,
	}
}

// Observe records one outcome.
func (t *Tracker) Observe(o channel.Outcome) {
	ct := channel.ChannelType(strings.ToLower(strings.TrimSpace(o.Channel.String())))
	if ct == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[ct]
	if !ok {
		state = &DeliveryState{Channel: ct}
		t.states[ct] = state
	}
	state.Status = o.Status
	state.Step = o.Step
	state.UpdatedAt = t.now().UTC()
	state.LastError = ""
	if o.Err != nil {
		state.LastError = o.Err.Error()
	}
	switch o.Status {
	case channel.StatusDelivered:
		state.Delivered++
	case channel.StatusFailed:
		state.Failed++
	case channel.StatusSkipped:
		state.Skipped++
	}
}

// Snapshot returns a copy of the state of one channel.
func (t *Tracker) Snapshot(channelType channel.ChannelType) (DeliveryState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[channelType]
	if !ok {
		return DeliveryState{}, false
	}
	return *state, true
}
