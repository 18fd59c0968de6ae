package ledger

import "context"

// Decision is the answer to "Rollback changes?" after a failed edit.
type Decision int

const (
	// Keep leaves the optimistic value in place.
	Keep Decision = iota
	// Rollback restores the value from before the edit.
	Rollback
)

func (d Decision) String() string {
	if d == Rollback {
		return "rollback"
	}
	return "keep"
}

// Confirmer asks whether a failed edit should be rolled back.
type Confirmer interface {
	ConfirmRollback(ctx context.Context, err error) Decision
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, err error) Decision

func (f ConfirmFunc) ConfirmRollback(ctx context.Context, err error) Decision {
	return f(ctx, err)
}

var (
	AlwaysRollback Confirmer = ConfirmFunc(func(context.Context, error) Decision { return Rollback })
	NeverRollback  Confirmer = ConfirmFunc(func(context.Context, error) Decision { return Keep })
)

type decisionKey struct{}

// WithDecision answers the rollback question ahead of time for edits made
// with ctx, overriding the orchestrator's confirmer.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFrom returns the decision stored by WithDecision.
func DecisionFrom(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}
