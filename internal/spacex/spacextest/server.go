// Package spacextest runs an in-memory launch data API for tests.
package spacextest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nzvengeance/launch-shelf/internal/models"
)

// Server serves /launches, /rockets/{id} and PATCH edits. Edits are accepted
// unless FailEdits is set, in which case they answer 404 {"error": "Not found"}.
type Server struct {
	URL string

	mu        sync.Mutex
	launches  []models.Launch
	rockets   map[string]int64
	failEdits bool
	edits     []string
}

// New starts a server seeded with launches and rocket costs and closes it
// when the test ends.
func New(t testing.TB, launches []models.Launch, rockets map[string]int64) *Server {
	t.Helper()
	s := &Server{launches: launches, rockets: rockets}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

// Fixture is a small launch collection: two Falcon 9 launches a day apart,
// the older carrying two satellites.
func Fixture() ([]models.Launch, map[string]int64) {
	launches := []models.Launch{
		{
			MissionName:   "CRS-1",
			FlightNumber:  1,
			LaunchDateUTC: "2012-10-08T00:35:00.000Z",
			Rocket: models.Rocket{
				RocketID: "falcon9",
				SecondStage: models.SecondStage{Payloads: []models.Payload{
					{PayloadID: "CRS-1", PayloadType: "Satellite"},
					{PayloadID: "Orbcomm-OG2", PayloadType: "Satellite"},
				}},
			},
		},
		{
			MissionName:   "CASSIOPE",
			FlightNumber:  2,
			LaunchDateUTC: "2012-10-09T00:35:00.000Z",
			Rocket:        models.Rocket{RocketID: "falcon9"},
		},
	}
	return launches, map[string]int64{"falcon9": 50000000}
}

// SetFailEdits makes subsequent edits fail.
func (s *Server) SetFailEdits(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEdits = fail
}

// SetRocketCost changes what the rockets endpoint reports.
func (s *Server) SetRocketCost(id string, cost int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rockets[id] = cost
}

// Edits lists received edit paths in order.
func (s *Server) Edits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.edits...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodPatch {
		s.edits = append(s.edits, r.URL.Path)
		if s.failEdits {
			notFound(w)
			return
		}
		w.Write([]byte(`{}`))
		return
	}

	switch {
	case r.URL.Path == "/launches":
		json.NewEncoder(w).Encode(s.launches)
	case strings.HasPrefix(r.URL.Path, "/rockets/"):
		id := strings.TrimPrefix(r.URL.Path, "/rockets/")
		cost, ok := s.rockets[id]
		if !ok {
			notFound(w)
			return
		}
		json.NewEncoder(w).Encode(models.RocketDetail{RocketID: id, CostPerLaunch: cost})
	default:
		notFound(w)
	}
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not found"}`))
}
