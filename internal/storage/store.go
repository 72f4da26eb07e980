package storage

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
)

// Store provides an interface for the uplink session journal. It records
// agent runs, every send attempt and every connection state change.
type Store interface {
	// CreateSession registers a new agent run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - session: Run identity, telemetry target, collector endpoint and configuration
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, session Session) (sessionID int64, err error)

	// FinishSession stores the final statistics of a run.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session to finish
	//   - endTime: Time the run stopped
	//   - summary: Statistics, final state and exit error of the run
	//
	// Returns:
	//   - error: If the update fails or context is cancelled
	FinishSession(ctx context.Context, sessionID int64, endTime time.Time, summary loop.Summary) error

	// Session retrieves a specific session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: If retrieval fails, the session does not exist or context is cancelled
	Session(ctx context.Context, id int64) (session *SessionData, err error)

	// Sessions returns all sessions ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*SessionData, err error)

	// StoreUplinks saves a batch of send attempts in a single atomic transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session these attempts belong to
	//   - ticks: Send attempts with the reading and outcome of each
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreUplinks(ctx context.Context, sessionID int64, ticks []loop.Tick) error

	// Uplinks returns the send attempts of a session in the order they were made.
	Uplinks(ctx context.Context, sessionID int64) (uplinks []*UplinkData, err error)

	// StoreTransition saves a connection state change.
	StoreTransition(ctx context.Context, sessionID int64, t link.Transition) error

	// Transitions returns the state changes of a session in the order they happened.
	Transitions(ctx context.Context, sessionID int64) (transitions []*TransitionData, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
