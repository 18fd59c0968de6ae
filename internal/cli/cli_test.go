package cli

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/nzvengeance/launch-shelf/internal/spacex/spacextest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  ledger.Decision
	}{
		{"y\n", ledger.Rollback},
		{"YES\n", ledger.Rollback},
		{"  y  \n", ledger.Rollback},
		{"n\n", ledger.Keep},
		{"\n", ledger.Keep},
		{"", ledger.Keep},
		{"maybe\n", ledger.Keep},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		c := NewPromptConfirmer(strings.NewReader(tt.input), &out)

		got := c.ConfirmRollback(context.Background(), errors.New("Not found"))
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Error: Not found. Rollback changes? [y/N]")
	}
}

func TestDecisionFlags(t *testing.T) {
	ctx := context.Background()
	err := errors.New("boom")

	assert.Equal(t, ledger.Rollback, decisionFlags{rollback: true}.confirmer(nil, nil).ConfirmRollback(ctx, err))
	assert.Equal(t, ledger.Keep, decisionFlags{keep: true}.confirmer(nil, nil).ConfirmRollback(ctx, err))
	assert.IsType(t, &PromptConfirmer{}, decisionFlags{}.confirmer(strings.NewReader(""), &bytes.Buffer{}))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0", formatMoney(0))
	assert.Equal(t, "$999", formatMoney(999))
	assert.Equal(t, "$1,000", formatMoney(1000))
	assert.Equal(t, "$50,000,000", formatMoney(50000000))
	assert.Equal(t, "-$1,234", formatMoney(-1234))
	assert.Equal(t, "-$9,223,372,036,854,775,808", formatMoney(math.MinInt64))
	assert.Equal(t, "$9,223,372,036,854,775,807", formatMoney(math.MaxInt64))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "10.08.2012", formatDate("2012-10-08T00:35:00.000Z"))
	assert.Equal(t, "03.25.2006", formatDate("2006-03-24T22:30:00-05:00"), "dates are shown in UTC")
	assert.Equal(t, "soon", formatDate("soon"))
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "loading...", formatCost(models.Cost{Status: models.StatusPending}))
	assert.Equal(t, "error: Not found", formatCost(models.Cost{Status: models.StatusRejected, Error: "Not found"}))
	assert.Equal(t, "unknown", formatCost(models.Cost{Status: models.StatusResolved, Missing: true}))
	assert.Equal(t, "$1,000", formatCost(models.Cost{Status: models.StatusResolved, Value: 1000}))
}

func TestFormatHours(t *testing.T) {
	h := 24
	assert.Equal(t, "24h", formatHours(&h))
	assert.Equal(t, "-", formatHours(nil))
}

// run executes launchctl against a fresh in-memory tab backed by api.
func run(t *testing.T, api *spacextest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CHANNEL_DRIVER", "none")
	t.Setenv("LAUNCH_API_BASE_URL", api.URL)

	var out bytes.Buffer
	root := RootCmd()
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func newAPI(t *testing.T) *spacextest.Server {
	launchList, rockets := spacextest.Fixture()
	return spacextest.New(t, launchList, rockets)
}

func TestListCommand(t *testing.T) {
	out, err := run(t, newAPI(t), "", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "2-2012-10-09T00:35:00.000Z  CASSIOPE")
	assert.Contains(t, out, "since last: 24h")
	assert.Contains(t, out, "satellites: 2")
	assert.Contains(t, out, "flight:     1")
	assert.Contains(t, out, "date:       10.08.2012")
	assert.Contains(t, out, "date:       10.09.2012")
	assert.Contains(t, out, "Total cost: $100,000,000")
	assert.Less(t, strings.Index(out, "CASSIOPE"), strings.Index(out, "CRS-1"), "newest launch first")
}

func TestTotalCommand(t *testing.T) {
	out, err := run(t, newAPI(t), "", "total")
	require.NoError(t, err)
	assert.Equal(t, "Total cost: $100,000,000\n", out)
}

func TestSetCostCommand(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		out, err := run(t, newAPI(t), "", "set-cost", "falcon9", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "Saved.")
		assert.Contains(t, out, "Total cost: $2")
	})

	t.Run("prompt answered yes", func(t *testing.T) {
		api := newAPI(t)
		api.SetFailEdits(true)

		out, err := run(t, api, "y\n", "set-cost", "falcon9", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "Rollback changes? [y/N]")
		assert.Contains(t, out, "Rolled back.")
		assert.Contains(t, out, "Total cost: $100,000,000")
	})

	t.Run("keep flag skips prompt", func(t *testing.T) {
		api := newAPI(t)
		api.SetFailEdits(true)

		out, err := run(t, api, "", "set-cost", "--keep", "falcon9", "1")
		require.NoError(t, err)
		assert.NotContains(t, out, "Rollback changes?")
		assert.Contains(t, out, "Kept the local change.")
	})

	t.Run("flags are exclusive", func(t *testing.T) {
		_, err := run(t, newAPI(t), "", "set-cost", "--keep", "--rollback", "falcon9", "1")
		assert.Error(t, err)
	})

	t.Run("bad cost", func(t *testing.T) {
		_, err := run(t, newAPI(t), "", "set-cost", "falcon9", "lots")
		assert.Error(t, err)
	})
}

func TestSetPayloadTypeCommand(t *testing.T) {
	out, err := run(t, newAPI(t), "", "set-payload-type", "1-2012-10-08T00:35:00.000Z", "CRS-1", "Dragon")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved.")
	assert.Contains(t, out, "satellites: 1")

	_, err = run(t, newAPI(t), "", "set-payload-type", "9-nope", "CRS-1", "Dragon")
	assert.ErrorIs(t, err, ledger.ErrLaunchNotFound)
}
