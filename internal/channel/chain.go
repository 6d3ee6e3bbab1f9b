package channel

import (
	"context"
	"errors"
	"log/slog"
)

// errNoStep is returned by RunChain when no step was eligible to run.
var errNoStep = errors.New("no delivery step ran")

// Condition decides whether a step runs after the previous attempt failed with err.
type Condition func(err error) bool

// OnAnyError runs the step after any failure.
func OnAnyError(err error) bool {
	return err != nil
}

// OnMarkupRejected runs the step only when the platform rejected the markup.
func OnMarkupRejected(err error) bool {
	return errors.Is(err, ErrMarkupRejected)
}

// Step is one delivery strategy of a fallback chain.
type Step struct {
	Name string
	// After is ignored for the first step; later steps are skipped when it is nil or false.
	After Condition
	// Sends marks steps whose success creates a new platform message.
	Sends bool
	Do    func(ctx context.Context) error
}

// ChainResult describes how a chain ended.
type ChainResult struct {
	Step     string
	Sent     bool
	Attempts int
	Err      error
}

// RunChain tries steps in order and stops at the first success.
// A step only runs if its After condition accepts the error of the last attempted step,
// so a message is delivered at most once.
func RunChain(ctx context.Context, logger *slog.Logger, steps []Step) ChainResult {
	var result ChainResult
	var lastErr error
	for i, step := range steps {
		if step.Do == nil {
			continue
		}
		if i > 0 && result.Attempts > 0 && (step.After == nil || !step.After(lastErr)) {
			continue
		}
		result.Attempts++
		result.Step = step.Name
		err := step.Do(ctx)
		if err == nil {
			result.Sent = step.Sends
			result.Err = nil
			if logger != nil && result.Attempts > 1 {
				logger.Info("delivery recovered", slog.String("step", step.Name), slog.Int("attempt", result.Attempts))
			}
			return result
		}
		if logger != nil {
			logger.Warn("delivery step failed",
				slog.String("step", step.Name),
				slog.Int("attempt", result.Attempts),
				slog.Any("error", err))
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errNoStep
	}
	result.Err = lastErr
	return result
}
