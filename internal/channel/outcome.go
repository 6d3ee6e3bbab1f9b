package channel

import "encoding/json"

// Status is the result class of one delivery.
type Status string

const (
	// StatusDelivered means a platform call succeeded.
	StatusDelivered Status = "delivered"
	// StatusSkipped means the message or recipient was not attempted (malformed or unroutable).
	StatusSkipped Status = "skipped"
	// StatusFailed means every delivery step failed.
	StatusFailed Status = "failed"
)

// RecipientLevel is the Outcome.Index used when no message of the response was attempted.
const RecipientLevel = -1

// Outcome records what happened to one message for one recipient.
type Outcome struct {
	Channel ChannelType
	ChatID  ID
	Index   int
	Status  Status
	Step    string
	Err     error
}

// Delivered reports whether the message reached the platform.
func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Channel ChannelType `json:"channel"`
		ChatID  ID          `json:"chatId,omitempty"`
		Index   int         `json:"index"`
		Status  Status      `json:"status"`
		Step    string      `json:"step,omitempty"`
		Error   string      `json:"error,omitempty"`
	}{
		Channel: o.Channel,
		ChatID:  o.ChatID,
		Index:   o.Index,
		Status:  o.Status,
		Step:    o.Step,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// Report collects every outcome of one dispatch, grouped by recipient order.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have the given status.
func (r Report) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// For returns the outcomes of one recipient chat.
func (r Report) For(channelType ChannelType, chatID ID) []Outcome {
	var items []Outcome
	for _, o := range r.Outcomes {
		if o.Channel == channelType && o.ChatID == chatID {
			items = append(items, o)
		}
	}
	return items
}
