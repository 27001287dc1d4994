// Package quota enforces the per-user monthly request ceiling.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/requestping/requestping/internal/model"
)

// ErrQuotaExceeded is returned when a user has used their monthly allowance.
var ErrQuotaExceeded = errors.New("monthly request limit reached")

// Counter counts a user's requests created in the current calendar month,
// using the store's clock.
type Counter interface {
	CountRequestsThisMonth(ctx context.Context, userID string) (int, error)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
}

// Remaining returns how many more requests are allowed this month.
func (d Decision) Remaining() int {
	if d.Used >= d.Limit {
		return 0
	}
	return d.Limit - d.Used
}

// Err returns ErrQuotaExceeded for a denial and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %d of %d used", ErrQuotaExceeded, d.Used, d.Limit)
}

// Evaluate decides whether one more request fits under the limit.
// A user with limit N may hold N requests per month; the N+1th is denied.
func Evaluate(user *model.User, used int) Decision {
	return Decision{
		Allowed: used < user.MonthlyRequestLimit,
		Used:    used,
		Limit:   user.MonthlyRequestLimit,
	}
}

// Gate checks quotas against a Counter.
type Gate struct {
	counter Counter
}

// NewGate creates a quota gate.
func NewGate(counter Counter) *Gate {
	return &Gate{counter: counter}
}

// Check counts the user's requests this month and evaluates the limit.
// This is advisory; the insert path must re-evaluate under the store's lock.
func (g *Gate) Check(ctx context.Context, user *model.User) (Decision, error) {
	used, err := g.counter.CountRequestsThisMonth(ctx, user.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("count requests: %w", err)
	}
	return Evaluate(user, used), nil
}
