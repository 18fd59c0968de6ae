package models

import (
	"fmt"
	"time"
)

// PayloadTypeSatellite is the payload type counted by LaunchView.SatelliteCount.
const PayloadTypeSatellite = "Satellite"

// --- Launch Data ---

type Payload struct {
	PayloadID   string `json:"payload_id"`
	PayloadType string `json:"payload_type"`
}

type SecondStage struct {
	Payloads []Payload `json:"payloads"`
}

// Rocket is the rocket as embedded in a launch record. RocketID is the join
// key into RocketCostMap and is shared by many launches.
type Rocket struct {
	RocketID    string      `json:"rocket_id"`
	SecondStage SecondStage `json:"second_stage"`
}

type Launch struct {
	MissionName   string `json:"mission_name"`
	FlightNumber  int    `json:"flight_number"`
	LaunchDateUTC string `json:"launch_date_utc"`
	Rocket        Rocket `json:"rocket"`
}

// ID returns the launch identity "<flight_number>-<launch_date_utc>".
// It only depends on top-level fields so edits to payloads never change it.
func (l Launch) ID() string {
	return fmt.Sprintf("%d-%s", l.FlightNumber, l.LaunchDateUTC)
}

// RocketDetail is the rocket document returned by the rockets endpoint.
type RocketDetail struct {
	RocketID      string      `json:"rocket_id"`
	CostPerLaunch int64       `json:"cost_per_launch"`
	SecondStage   SecondStage `json:"second_stage"`
}

// RocketCostMap maps rocket_id to cost per launch.
type RocketCostMap map[string]int64

// Clone returns an independent copy of the map.
func (m RocketCostMap) Clone() RocketCostMap {
	out := make(RocketCostMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CloneLaunches deep-copies a launch collection, including payload slices.
func CloneLaunches(list []Launch) []Launch {
	if list == nil {
		return nil
	}
	out := make([]Launch, len(list))
	for i, l := range list {
		out[i] = l
		if l.Rocket.SecondStage.Payloads != nil {
			out[i].Rocket.SecondStage.Payloads = append([]Payload(nil), l.Rocket.SecondStage.Payloads...)
		}
	}
	return out
}

// --- Fetch State ---

type FetchStatus string

const (
	StatusIdle     FetchStatus = "idle"
	StatusPending  FetchStatus = "pending"
	StatusResolved FetchStatus = "resolved"
	StatusRejected FetchStatus = "rejected"
)

// Cost is the per-launch cost as shown next to a launch. Status and Error are
// those of the rocket cost map as a whole.
type Cost struct {
	Value   int64       `json:"value"`
	Status  FetchStatus `json:"status"`
	Error   string      `json:"error,omitempty"`
	Missing bool        `json:"missing,omitempty"` // rocket id absent from the map
}

// LaunchView is the derived, never persisted projection of one launch.
type LaunchView struct {
	Launch
	ID                   string `json:"id"`
	SatelliteCount       int    `json:"satellite_count"`
	HoursSinceLastLaunch *int   `json:"hours_since_last_launch"`
	Cost                 Cost   `json:"cost"`
}

// --- Edit Fields ---

type RocketCostField struct {
	CostPerLaunch int64 `json:"cost_per_launch"`
}

type PayloadTypeField struct {
	PayloadType string `json:"payload_type"`
}

// --- Sync & Audit ---

type SyncRecord struct {
	ID           int       `json:"id"`
	SyncType     string    `json:"sync_type"` // "load", "refresh"
	Status       string    `json:"status"`    // "running", "success", "error"
	ItemCount    int       `json:"item_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}
