// Package ledger composes the launch collection and rocket cost map into the
// views shown to users and implements the optimistic edit workflows.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nzvengeance/launch-shelf/internal/launches"
	"github.com/nzvengeance/launch-shelf/internal/metrics"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/nzvengeance/launch-shelf/internal/rocketcosts"
	"github.com/rs/zerolog/log"
)

var (
	ErrLaunchNotFound  = errors.New("launch not found")
	ErrPayloadNotFound = errors.New("payload not found")
)

// Editor submits edits to the launch data API.
type Editor interface {
	EditRocket(ctx context.Context, rocketID string, field models.RocketCostField) error
	EditPayload(ctx context.Context, payloadID string, field models.PayloadTypeField) error
}

// Summary is everything the presentation layer renders.
type Summary struct {
	Launches     []models.LaunchView `json:"launches"`
	TotalCost    int64               `json:"total_cost"`
	LaunchStatus models.FetchStatus  `json:"launch_status"`
	LaunchError  string              `json:"launch_error,omitempty"`
	CostStatus   models.FetchStatus  `json:"cost_status"`
	CostError    string              `json:"cost_error,omitempty"`
}

// Outcome reports how an edit ended. Applied means the API accepted it.
// After a failure exactly one of RolledBack, Superseded or neither (kept) is
// set.
type Outcome struct {
	Applied    bool   `json:"applied"`
	RolledBack bool   `json:"rolled_back"`
	Superseded bool   `json:"superseded"`
	Error      string `json:"error,omitempty"`
}

type Orchestrator struct {
	launches *launches.Manager
	costs    *rocketcosts.Manager
	editor   Editor
	confirm  Confirmer
}

// New composes the managers. A nil confirmer keeps optimistic values after
// failed edits unless the context carries a decision.
func New(l *launches.Manager, c *rocketcosts.Manager, editor Editor, confirm Confirmer) *Orchestrator {
	if confirm == nil {
		confirm = NeverRollback
	}
	return &Orchestrator{launches: l, costs: c, editor: editor, confirm: confirm}
}

// Load loads the launch collection and then the costs of the rockets it
// references. Costs are not requested until launches resolve.
func (o *Orchestrator) Load(ctx context.Context) error {
	if err := o.launches.EnsureLoaded(ctx); err != nil {
		return err
	}
	st := o.launches.State()
	if st.Status != models.StatusResolved {
		return nil
	}
	return o.costs.EnsureLoaded(ctx, st.Launches)
}

// Refresh re-fetches both slots, launches first.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	lerr := o.launches.Refresh(ctx)
	list := o.launches.Launches()
	if len(list) == 0 {
		return lerr
	}
	return errors.Join(lerr, o.costs.Refresh(ctx, list))
}

// Summary derives the current views and total cost.
func (o *Orchestrator) Summary() Summary {
	ls := o.launches.State()
	cs := o.costs.State()

	views := Derive(ls.Launches, cs.Costs, cs.Status, cs.Error)
	total := TotalCost(views)
	metrics.TotalCost.Set(float64(total))

	return Summary{
		Launches:     views,
		TotalCost:    total,
		LaunchStatus: ls.Status,
		LaunchError:  ls.Error,
		CostStatus:   cs.Status,
		CostError:    cs.Error,
	}
}

// Launch returns the view of one launch.
func (o *Orchestrator) Launch(launchID string) (models.LaunchView, bool) {
	for _, v := range o.Summary().Launches {
		if v.ID == launchID {
			return v, true
		}
	}
	return models.LaunchView{}, false
}

// LaunchState and CostState expose the underlying managers' snapshots.
func (o *Orchestrator) LaunchState() launches.State { return o.launches.State() }
func (o *Orchestrator) CostState() rocketcosts.State { return o.costs.State() }

// SubscribeCosts reports every change of the cost map, including changes
// made by other tabs.
func (o *Orchestrator) SubscribeCosts(fn func(models.RocketCostMap)) (cancel func()) {
	return o.costs.Subscribe(fn)
}

func (o *Orchestrator) confirmer(ctx context.Context) Confirmer {
	if d, ok := DecisionFrom(ctx); ok {
		return ConfirmFunc(func(context.Context, error) Decision { return d })
	}
	return o.confirm
}

// ChangeLaunchCost sets the cost per launch of rocketID. The new value is
// stored and broadcast before the API is called. If the API rejects the edit
// the confirmer decides whether the previous value is restored.
//
// The returned error is only set when the edit could not be applied locally;
// API failures are reported in the Outcome.
func (o *Orchestrator) ChangeLaunchCost(ctx context.Context, rocketID string, field models.RocketCostField) (Outcome, error) {
	snapshot, existed := o.costs.Costs()[rocketID]
	optimistic := field.CostPerLaunch

	if err := o.costs.Replace(func(c models.RocketCostMap) models.RocketCostMap {
		c[rocketID] = optimistic
		return c
	}); err != nil {
		return Outcome{}, fmt.Errorf("applying cost change: %w", err)
	}

	err := o.editor.EditRocket(ctx, rocketID, field)
	if err == nil {
		metrics.MutationTotal.WithLabelValues("rocket_cost", "applied").Inc()
		log.Info().Str("rocket_id", rocketID).Int64("cost_per_launch", optimistic).Msg("rocket cost updated")
		return Outcome{Applied: true}, nil
	}

	out := Outcome{Error: err.Error()}
	decision := o.confirmer(ctx).ConfirmRollback(ctx, err)
	log.Warn().Err(err).Str("rocket_id", rocketID).Stringer("decision", decision).Msg("rocket cost edit failed")

	if decision != Rollback {
		metrics.MutationTotal.WithLabelValues("rocket_cost", "kept").Inc()
		return out, nil
	}

	// Only undo our own write: a newer value from another tab wins.
	if rerr := o.costs.Replace(func(c models.RocketCostMap) models.RocketCostMap {
		if cur, ok := c[rocketID]; !ok || cur != optimistic {
			out.Superseded = true
			return c
		}
		if existed {
			c[rocketID] = snapshot
		} else {
			delete(c, rocketID)
		}
		return c
	}); rerr != nil {
		return out, fmt.Errorf("rolling back cost change: %w", rerr)
	}

	out.RolledBack = !out.Superseded
	metrics.MutationTotal.WithLabelValues("rocket_cost", result(out)).Inc()
	return out, nil
}

// ChangePayloadType sets the type of one payload of one launch, with the same
// optimistic protocol as ChangeLaunchCost. A rollback restores the whole
// launch as it was before the edit.
func (o *Orchestrator) ChangePayloadType(ctx context.Context, launchID, payloadID string, field models.PayloadTypeField) (Outcome, error) {
	snapshot, ok := findLaunch(o.launches.Launches(), launchID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrLaunchNotFound, launchID)
	}
	if !hasPayload(snapshot, payloadID) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrPayloadNotFound, payloadID)
	}

	var optimistic models.Launch
	if err := o.launches.Replace(func(list []models.Launch) []models.Launch {
		next := WithPayloadType(list, launchID, payloadID, field.PayloadType)
		optimistic, _ = findLaunch(next, launchID)
		return next
	}); err != nil {
		return Outcome{}, fmt.Errorf("applying payload change: %w", err)
	}

	err := o.editor.EditPayload(ctx, payloadID, field)
	if err == nil {
		metrics.MutationTotal.WithLabelValues("payload_type", "applied").Inc()
		log.Info().Str("launch_id", launchID).Str("payload_id", payloadID).Str("payload_type", field.PayloadType).Msg("payload type updated")
		return Outcome{Applied: true}, nil
	}

	out := Outcome{Error: err.Error()}
	decision := o.confirmer(ctx).ConfirmRollback(ctx, err)
	log.Warn().Err(err).Str("launch_id", launchID).Str("payload_id", payloadID).Stringer("decision", decision).Msg("payload type edit failed")

	if decision != Rollback {
		metrics.MutationTotal.WithLabelValues("payload_type", "kept").Inc()
		return out, nil
	}

	out.Superseded = true
	if rerr := o.launches.Replace(func(list []models.Launch) []models.Launch {
		for i := range list {
			if list[i].ID() != launchID {
				continue
			}
			if cmp.Equal(list[i], optimistic, cmpopts.EquateEmpty()) {
				list[i] = snapshot
				out.Superseded = false
			}
			break
		}
		return list
	}); rerr != nil {
		return out, fmt.Errorf("rolling back payload change: %w", rerr)
	}

	out.RolledBack = !out.Superseded
	metrics.MutationTotal.WithLabelValues("payload_type", result(out)).Inc()
	return out, nil
}

// Close tears down both managers.
func (o *Orchestrator) Close() error {
	o.launches.Close()
	return o.costs.Close()
}

func result(out Outcome) string {
	switch {
	case out.Applied:
		return "applied"
	case out.RolledBack:
		return "rolled_back"
	case out.Superseded:
		return "superseded"
	default:
		return "kept"
	}
}

func findLaunch(list []models.Launch, launchID string) (models.Launch, bool) {
	for _, l := range list {
		if l.ID() == launchID {
			return l, true
		}
	}
	return models.Launch{}, false
}

func hasPayload(l models.Launch, payloadID string) bool {
	for _, p := range l.Rocket.SecondStage.Payloads {
		if p.PayloadID == payloadID {
			return true
		}
	}
	return false
}
