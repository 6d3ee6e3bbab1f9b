package healthcheck

import "context"

// Aggregator runs several checkers in order and concatenates their results.
type Aggregator struct {
	checkers []Checker
}

// NewAggregator creates an Aggregator; nil checkers are ignored.
func NewAggregator(checkers ...Checker) *Aggregator {
	items := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			items = append(items, c)
		}
	}
	return &Aggregator{checkers: items}
}

// ListChecks evaluates every checker.
func (a *Aggregator) ListChecks(ctx context.Context) []CheckResult {
	if a == nil {
		return []CheckResult{}
	}
	result := []CheckResult{}
	for _, c := range a.checkers {
		if err := ctx.Err(); err != nil {
			break
		}
		result = append(result, c.ListChecks(ctx)...)
	}
	return result
}

// Overall folds check statuses into one: error beats warn beats unknown beats ok.
// An empty list is ok.
func Overall(items []CheckResult) string {
	rank := map[string]int{StatusOK: 0, StatusUnknown: 1, StatusWarn: 2, StatusError: 3}
	overall := StatusOK
	for _, item := range items {
		r, ok := rank[item.Status]
		if !ok {
			r = rank[StatusUnknown]
			item.Status = StatusUnknown
		}
		if r > rank[overall] {
			overall = item.Status
		}
	}
	return overall
}
