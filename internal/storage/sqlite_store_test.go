package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
	"github.com/roman-kulish/drone-uplink/internal/uplink"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSession(runID string) Session {
	return Session{
		RunID:     runID,
		DroneID:   "drone_pi",
		Target:    "tcp:127.0.0.1:5760",
		Endpoint:  "http://127.0.0.1:3000/api/logs",
		StartTime: epoch,
		Config:    map[string]any{"interval": "500ms"},
	}
}

func testTick(n int, outcome uplink.Outcome) loop.Tick {
	at := epoch.Add(time.Duration(n) * 500 * time.Millisecond)
	return loop.Tick{
		At: at,
		Reading: telemetry.Reading{
			Timestamp:      at,
			Latitude:       47.397742,
			Longitude:      8.545594,
			Altitude:       30.5,
			Heading:        90,
			GroundSpeed:    5,
			SatelliteCount: 12,
			FixType:        3,
		},
		Outcome: outcome,
		State:   link.Connected,
	}
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateSession(ctx, testSession("run-1"))
	require.NoError(t, err)

	second := testSession("run-2")
	second.StartTime = epoch.Add(time.Hour)
	second.Config = "raw config"
	secondID, err := s.CreateSession(ctx, second)
	require.NoError(t, err)
	assert.NotEqual(t, first, secondID)

	sess, err := s.Session(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "run-1", sess.RunID)
	assert.Equal(t, "drone_pi", sess.DroneID)
	assert.Equal(t, "tcp:127.0.0.1:5760", sess.Target)
	assert.Equal(t, "http://127.0.0.1:3000/api/logs", sess.Endpoint)
	assert.True(t, epoch.Equal(sess.StartTime))
	assert.JSONEq(t, `{"interval":"500ms"}`, sess.Config.String)
	assert.False(t, sess.EndTime.Valid)
	assert.False(t, sess.FinalState.Valid)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "run-1", sessions[0].RunID)
	assert.Equal(t, "run-2", sessions[1].RunID)
	assert.Equal(t, "raw config", sessions[1].Config.String)

	_, err = s.CreateSession(ctx, testSession("run-1"))
	assert.Error(t, err, "run id is unique")
}

func TestSqliteStore_SessionNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateSession(ctx, testSession("run-1"))
	require.NoError(t, err)

	_, err = s.Session(ctx, 42)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = s.FinishSession(ctx, 42, epoch, loop.Summary{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSqliteStore_FinishSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, testSession("run-1"))
	require.NoError(t, err)

	summary := loop.Summary{
		Stats: loop.Statistics{Sent: 7, Failed: 3, Started: epoch},
		State: link.FailedPermanently,
		Err:   errors.New("connect retries exhausted"),
	}
	require.NoError(t, s.FinishSession(ctx, id, epoch.Add(time.Minute), summary))

	sess, err := s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, sess.Sent)
	assert.Equal(t, 3, sess.Failed)
	require.True(t, sess.EndTime.Valid)
	assert.True(t, epoch.Add(time.Minute).Equal(sess.EndTime.Time))
	assert.Equal(t, "FAILED_PERMANENTLY", sess.FinalState.String)
	assert.Equal(t, "connect retries exhausted", sess.ExitError.String)
}

func TestSqliteStore_Uplinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, testSession("run-1"))
	require.NoError(t, err)

	ticks := []loop.Tick{
		testTick(1, uplink.Outcome{Kind: uplink.Delivered, StatusCode: 201, Latency: 35 * time.Millisecond}),
		testTick(2, uplink.Outcome{Kind: uplink.Rejected, StatusCode: 500, Message: "boom", Latency: 12 * time.Millisecond}),
		testTick(3, uplink.Outcome{Kind: uplink.Timeout, Message: "deadline exceeded", Latency: 10 * time.Second}),
	}
	require.NoError(t, s.StoreUplinks(ctx, id, ticks))
	require.NoError(t, s.StoreUplinks(ctx, id, nil))

	uplinks, err := s.Uplinks(ctx, id)
	require.NoError(t, err)
	require.Len(t, uplinks, 3)

	first := uplinks[0]
	assert.Equal(t, id, first.SessionID)
	assert.True(t, ticks[0].At.Equal(first.Timestamp))
	assert.True(t, ticks[0].Reading.Timestamp.Equal(first.ReadingTime))
	assert.Equal(t, 47.397742, first.Latitude)
	assert.Equal(t, 8.545594, first.Longitude)
	assert.Equal(t, 30.5, first.Altitude)
	assert.Equal(t, 12, first.Satellites)
	assert.Equal(t, 3, first.FixType)
	assert.Equal(t, "delivered", first.Outcome)
	assert.Equal(t, int64(201), first.StatusCode.Int64)
	assert.False(t, first.Message.Valid)
	assert.Equal(t, int64(35), first.LatencyMs)

	assert.Equal(t, "rejected", uplinks[1].Outcome)
	assert.Equal(t, "boom", uplinks[1].Message.String)

	assert.Equal(t, "timeout", uplinks[2].Outcome)
	assert.False(t, uplinks[2].StatusCode.Valid)
	assert.Equal(t, int64(10_000), uplinks[2].LatencyMs)

	other, err := s.Uplinks(ctx, id+1)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSqliteStore_UplinksLargeBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, testSession("run-1"))
	require.NoError(t, err)

	// more rows than fit into the bound variable limit of a single INSERT
	ticks := make([]loop.Tick, 3000)
	for i := range ticks {
		ticks[i] = testTick(i, uplink.Outcome{Kind: uplink.Delivered, StatusCode: 201})
	}
	require.NoError(t, s.StoreUplinks(ctx, id, ticks))

	uplinks, err := s.Uplinks(ctx, id)
	require.NoError(t, err)
	require.Len(t, uplinks, len(ticks))
	assert.True(t, ticks[len(ticks)-1].At.Equal(uplinks[len(uplinks)-1].Timestamp))
}

func TestSqliteStore_Transitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, testSession("run-1"))
	require.NoError(t, err)

	require.NoError(t, s.StoreTransition(ctx, id, link.Transition{
		From: link.Disconnected, To: link.Connecting, Reason: "connect attempt", At: epoch,
	}))
	require.NoError(t, s.StoreTransition(ctx, id, link.Transition{
		From: link.Connected, To: link.Disconnected, Reason: "link stalled", Err: errors.New("port busy"), At: epoch.Add(time.Second),
	}))

	transitions, err := s.Transitions(ctx, id)
	require.NoError(t, err)
	require.Len(t, transitions, 2)

	assert.Equal(t, "DISCONNECTED", transitions[0].FromState)
	assert.Equal(t, "CONNECTING", transitions[0].ToState)
	assert.Equal(t, "connect attempt", transitions[0].Reason)
	assert.False(t, transitions[0].Error.Valid)

	assert.Equal(t, "link stalled", transitions[1].Reason)
	assert.Equal(t, "port busy", transitions[1].Error.String)
}

func TestSqliteStore_Close(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "journal.db"))

	_, err := s.CreateSession(context.Background(), testSession("run-1"))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
