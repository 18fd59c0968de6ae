package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/launches"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/nzvengeance/launch-shelf/internal/rocketcosts"
	"github.com/nzvengeance/launch-shelf/internal/spacex"
	"github.com/nzvengeance/launch-shelf/internal/spacex/spacextest"
	"github.com/nzvengeance/launch-shelf/internal/storage"
	syncsvc "github.com/nzvengeance/launch-shelf/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crs1 = "1-2012-10-08T00:35:00.000Z"

type fixture struct {
	api    *spacextest.Server
	ledger *ledger.Orchestrator
	cfg    *config.Config
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	launchList, rockets := spacextest.Fixture()
	api := spacextest.New(t, launchList, rockets)

	ctx := context.Background()
	store := storage.NewMemoryStore()
	client := spacex.NewClient(api.URL, 1000, 100)
	lm, err := launches.NewManager(ctx, store, client, launches.Options{})
	require.NoError(t, err)
	cm, err := rocketcosts.NewManager(ctx, store, nil, client, rocketcosts.Options{})
	require.NoError(t, err)

	l := ledger.New(lm, cm, client, nil)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, l.Load(ctx))

	cfg := &config.Config{BaseURL: "http://localhost:8080", RefreshSchedule: "0 * * * *"}
	return &fixture{api: api, ledger: l, cfg: cfg, srv: NewServer(l, nil, cfg, nil)}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "launchshelf_")
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]map[string]any](t, rec)
	assert.Equal(t, float64(2), body["launches"]["count"])
	assert.Equal(t, "resolved", body["rocket_costs"]["status"])
}

func TestListLaunches(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/launches", "")
	require.Equal(t, http.StatusOK, rec.Code)

	sum := decode[ledger.Summary](t, rec)
	require.Len(t, sum.Launches, 2)
	assert.Equal(t, int64(100000000), sum.TotalCost)
	assert.Equal(t, 2, sum.Launches[0].FlightNumber)
	require.NotNil(t, sum.Launches[0].HoursSinceLastLaunch)
	assert.Equal(t, 24, *sum.Launches[0].HoursSinceLastLaunch)
	assert.Nil(t, sum.Launches[1].HoursSinceLastLaunch)
	assert.Equal(t, 2, sum.Launches[1].SatelliteCount)
}

func TestGetLaunch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/launches/"+crs1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, crs1, decode[models.LaunchView](t, rec).ID)

	rec = f.do(t, http.MethodGet, "/api/launches/99-nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetPayloadType(t *testing.T) {
	path := "/api/launches/" + crs1 + "/payloads/CRS-1/type"

	t.Run("applied", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPut, path, `{"payload_type":"Dragon"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[ledger.Outcome](t, rec).Applied)
		assert.Equal(t, []string{"/payloads/CRS-1"}, f.api.Edits())

		v, _ := f.ledger.Launch(crs1)
		assert.Equal(t, 1, v.SatelliteCount)
	})

	t.Run("rolled back on request", func(t *testing.T) {
		f := newFixture(t)
		f.api.SetFailEdits(true)

		rec := f.do(t, http.MethodPut, path, `{"payload_type":"Dragon","rollback_on_error":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[ledger.Outcome](t, rec)
		assert.True(t, out.RolledBack)
		assert.Equal(t, "Not found", out.Error)

		v, _ := f.ledger.Launch(crs1)
		assert.Equal(t, 2, v.SatelliteCount)
	})

	t.Run("kept by default", func(t *testing.T) {
		f := newFixture(t)
		f.api.SetFailEdits(true)

		rec := f.do(t, http.MethodPut, path, `{"payload_type":"Dragon"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[ledger.Outcome](t, rec)
		assert.False(t, out.RolledBack)
		assert.Equal(t, "Not found", out.Error)

		v, _ := f.ledger.Launch(crs1)
		assert.Equal(t, 1, v.SatelliteCount)
	})

	t.Run("bad requests", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, path, `{`).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, path, `{}`).Code)
		assert.Equal(t, http.StatusNotFound,
			f.do(t, http.MethodPut, "/api/launches/99-nope/payloads/CRS-1/type", `{"payload_type":"Dragon"}`).Code)
		assert.Equal(t, http.StatusNotFound,
			f.do(t, http.MethodPut, "/api/launches/"+crs1+"/payloads/nope/type", `{"payload_type":"Dragon"}`).Code)
		assert.Empty(t, f.api.Edits())
	})
}

func TestSetRocketCost(t *testing.T) {
	path := "/api/rockets/falcon9/cost"

	t.Run("applied", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPut, path, `{"cost_per_launch":1}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[ledger.Outcome](t, rec).Applied)

		rec = f.do(t, http.MethodGet, "/api/total-cost", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"value":2,"status":"resolved","error":""}`, rec.Body.String())
	})

	t.Run("rolled back on request", func(t *testing.T) {
		f := newFixture(t)
		f.api.SetFailEdits(true)

		rec := f.do(t, http.MethodPut, path, `{"cost_per_launch":1,"rollback_on_error":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[ledger.Outcome](t, rec).RolledBack)

		rec = f.do(t, http.MethodGet, "/api/rocket-costs", "")
		costs := decode[rocketcosts.State](t, rec)
		assert.Equal(t, int64(50000000), costs.Costs["falcon9"])
	})

	t.Run("bad requests", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, path, `{"cost_per_launch":"lots"}`).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, path, `{}`).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/api/rockets/saturn5/cost", `{"cost_per_launch":1}`).Code)
	})
}

func TestEditRateLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.EditRateLimit = time.Hour
	f.srv = NewServer(f.ledger, nil, f.cfg, nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/rockets/falcon9/cost", `{"cost_per_launch":1}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPut, "/api/rockets/falcon9/cost", `{"cost_per_launch":2}`).Code)
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/sync", "").Code)

	f.api.SetRocketCost("falcon9", 7)
	f.srv = NewServer(f.ledger, nil, f.cfg, syncsvc.NewScheduler(f.ledger, nil, f.cfg))
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/sync", "").Code)

	assert.Eventually(t, func() bool {
		return f.ledger.Summary().TotalCost == 14
	}, 2*time.Second, 10*time.Millisecond)
}
