package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/models"
)

// Derive projects launches and the cost map into launch views, newest launch
// first. It is pure: the same inputs always give the same views and the
// inputs are never modified.
func Derive(launches []models.Launch, costs models.RocketCostMap, costStatus models.FetchStatus, costErr string) []models.LaunchView {
	sorted := models.CloneLaunches(launches)
	slices.SortStableFunc(sorted, func(a, b models.Launch) int {
		return strings.Compare(b.LaunchDateUTC, a.LaunchDateUTC)
	})

	views := make([]models.LaunchView, len(sorted))
	for i, l := range sorted {
		if l.Rocket.SecondStage.Payloads == nil {
			l.Rocket.SecondStage.Payloads = []models.Payload{}
		}

		v := models.LaunchView{
			Launch:         l,
			ID:             l.ID(),
			SatelliteCount: SatelliteCount(l),
		}

		if i < len(sorted)-1 {
			if h, ok := HoursBetween(sorted[i+1].LaunchDateUTC, l.LaunchDateUTC); ok {
				v.HoursSinceLastLaunch = &h
			}
		}

		value, ok := costs[l.Rocket.RocketID]
		v.Cost = models.Cost{
			Value:   value,
			Status:  costStatus,
			Error:   costErr,
			Missing: !ok && costStatus == models.StatusResolved,
		}
		views[i] = v
	}
	return views
}

// SatelliteCount counts the launch's payloads of type "Satellite".
func SatelliteCount(l models.Launch) int {
	n := 0
	for _, p := range l.Rocket.SecondStage.Payloads {
		if p.PayloadType == models.PayloadTypeSatellite {
			n++
		}
	}
	return n
}

// HoursBetween returns the whole hours from prev to curr, truncated toward
// zero. ok is false when either date does not parse.
func HoursBetween(prev, curr string) (hours int, ok bool) {
	p, err := time.Parse(time.RFC3339, prev)
	if err != nil {
		return 0, false
	}
	c, err := time.Parse(time.RFC3339, curr)
	if err != nil {
		return 0, false
	}
	return int(c.Sub(p).Hours()), true
}

// TotalCost sums the per-launch cost values. Missing costs count as zero.
func TotalCost(views []models.LaunchView) int64 {
	var total int64
	for _, v := range views {
		total += v.Cost.Value
	}
	return total
}

// WithPayloadType returns a new collection in which the payload payloadID of
// launch launchID has type payloadType. The matched launch is rebuilt down to
// the payload slice; every other launch is carried over unchanged and list
// itself is not modified.
func WithPayloadType(list []models.Launch, launchID, payloadID, payloadType string) []models.Launch {
	out := make([]models.Launch, len(list))
	for i, l := range list {
		if l.ID() != launchID {
			out[i] = l
			continue
		}

		payloads := make([]models.Payload, len(l.Rocket.SecondStage.Payloads))
		for j, p := range l.Rocket.SecondStage.Payloads {
			if p.PayloadID == payloadID {
				p.PayloadType = payloadType
			}
			payloads[j] = p
		}

		next := l
		next.Rocket.SecondStage = models.SecondStage{Payloads: payloads}
		out[i] = next
	}
	return out
}
