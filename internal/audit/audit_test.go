package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetragramaton/seplos-go/internal/fault"
	"github.com/tetragramaton/seplos-go/internal/write"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	confirmed := write.Result{
		ID: uuid.NewString(), Name: "battery_low_voltage_alarm", Outcome: write.Confirmed,
		Requested: 45, RequestedRaw: 4500, ReadBack: 45, ReadBackRaw: 4500,
		Previous: 46.4, HasPrevious: true, Sent: true, At: base,
	}
	rejected := write.Result{
		ID: uuid.NewString(), Name: "battery_low_voltage_alarm", Outcome: write.Rejected,
		Requested: 70, Err: fault.ErrUnsafeChange, At: base.Add(time.Minute),
	}
	other := write.Result{
		ID: uuid.NewString(), Name: "cell_high_voltage_alarm", Outcome: write.Failed,
		Requested: 3.6, Sent: true, Retries: 3, Err: errors.New("timeout"), At: base.Add(2 * time.Minute),
	}
	for _, r := range []write.Result{confirmed, rejected, other} {
		require.NoError(t, j.Record(ctx, r))
	}

	all, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID)
	assert.Equal(t, "failed", all[0].Outcome)
	assert.Equal(t, 3, all[0].Retries)
	assert.Nil(t, all[0].ReadBack)

	mine, err := j.Recent(ctx, "battery_low_voltage_alarm", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "rejected", mine[0].Outcome)
	assert.False(t, mine[0].Sent)
	assert.Contains(t, mine[0].Error, "safety guard")

	assert.Equal(t, "confirmed", mine[1].Outcome)
	require.NotNil(t, mine[1].ReadBack)
	assert.Equal(t, 45.0, *mine[1].ReadBack)
	require.NotNil(t, mine[1].Previous)
	assert.Equal(t, 46.4, *mine[1].Previous)
	assert.True(t, mine[1].At.Equal(base))
}

func TestDuplicateIDFails(t *testing.T) {
	j := openJournal(t)
	r := write.Result{ID: "fixed", Name: "x", At: time.Now()}
	require.NoError(t, j.Record(context.Background(), r))
	assert.Error(t, j.Record(context.Background(), r))
}
