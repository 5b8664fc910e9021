// Package quota decides whether a user may start another chat turn and
// how large a region the user may analyze.
//
// The gate only reads. Counting a request is left to the caller once the
// turn has been admitted.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Directory is the user record collaborator.
type Directory interface {
	ResolveRoleAndTier(ctx context.Context, userID string) (role, tier string, err error)
	GetUsage(ctx context.Context, userID, period string) (int, error)
}

// UserContext is what the rest of the turn knows about the caller.
type UserContext struct {
	UserID string
	Role   string
	Tier   string
	Limits Limits
	Usage  int
	Period string
}

// PermissionResolutionError reports that a user's role or tier could not
// be turned into limits.
type PermissionResolutionError struct {
	UserID string
	Err    error
}

func (e *PermissionResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve permissions for user %s: %v", e.UserID, e.Err)
}

func (e *PermissionResolutionError) Unwrap() error { return e.Err }

// QuotaExceededError reports a user at or over the request allowance.
type QuotaExceededError struct {
	UserID string
	Usage  int
	Limit  int
	Period string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("request quota exhausted: %d of %d requests used in %s", e.Usage, e.Limit, e.Period)
}

// ErrNoPolicy is wrapped when no limits exist for a role and tier.
var ErrNoPolicy = errors.New("no quota policy for role and tier")

// Gate admits or rejects chat turns.
type Gate struct {
	dir    Directory
	policy *Policy
	now    func() time.Time
}

// NewGate creates a gate over a directory and a policy table.
func NewGate(dir Directory, policy *Policy) *Gate {
	return &Gate{dir: dir, policy: policy, now: time.Now}
}

// Period returns the usage period containing t.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CurrentPeriod returns the usage period for now.
func (g *Gate) CurrentPeriod() string {
	return Period(g.now())
}

// Authorize resolves the user's limits and usage and rejects the turn
// when usage has reached the allowance.
func (g *Gate) Authorize(ctx context.Context, userID string) (UserContext, error) {
	role, tier, err := g.dir.ResolveRoleAndTier(ctx, userID)
	if err != nil {
		return UserContext{}, &PermissionResolutionError{UserID: userID, Err: err}
	}

	limits, ok := g.policy.Resolve(role, tier)
	if !ok {
		return UserContext{}, &PermissionResolutionError{
			UserID: userID,
			Err:    fmt.Errorf("%w: %s/%s", ErrNoPolicy, role, tier),
		}
	}

	period := g.CurrentPeriod()
	usage, err := g.dir.GetUsage(ctx, userID, period)
	if err != nil {
		return UserContext{}, fmt.Errorf("get usage: %w", err)
	}

	uc := UserContext{
		UserID: userID,
		Role:   role,
		Tier:   tier,
		Limits: limits,
		Usage:  usage,
		Period: period,
	}
	if usage >= limits.MaxRequests {
		return uc, &QuotaExceededError{UserID: userID, Usage: usage, Limit: limits.MaxRequests, Period: period}
	}
	return uc, nil
}
