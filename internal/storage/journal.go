package storage

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
)

const (
	// DefaultBatchSize is the number of send attempts buffered before they are
	// written in one transaction.
	DefaultBatchSize = 20

	writeTimeout = 5 * time.Second
)

// WithBatchSize sets the number of send attempts written per transaction
func WithBatchSize(n int) func(*Journal) {
	return func(j *Journal) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

// WithLogger sets the logger for the journal
func WithLogger(logger *slog.Logger) func(*Journal) {
	return func(j *Journal) {
		j.logger = logger.With(slog.String("component", "journal"))
	}
}

// Journal is a loop.Observer recording a run into a Store. Write errors are
// logged and never interrupt the uplink loop.
type Journal struct {
	loop.NopObserver

	store     Store
	sessionID int64
	batchSize int
	pending   []loop.Tick
	logger    *slog.Logger
}

// NewJournal creates the session record and returns a Journal writing to it
func NewJournal(ctx context.Context, store Store, session Session, options ...func(*Journal)) (*Journal, error) {
	j := Journal{
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&j)
	}

	id, err := store.CreateSession(ctx, session)
	if err != nil {
		return nil, err
	}
	j.sessionID = id

	return &j, nil
}

// SessionID returns the identifier of the recorded session
func (j *Journal) SessionID() int64 {
	return j.sessionID
}

func (j *Journal) OnTransition(t link.Transition) {
	j.flush()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := j.store.StoreTransition(ctx, j.sessionID, t); err != nil {
		j.logger.Warn("failed to record transition", slog.Any("error", err))
	}
}

func (j *Journal) OnTick(t loop.Tick) {
	j.pending = append(j.pending, t)
	if len(j.pending) >= j.batchSize {
		j.flush()
	}
}

func (j *Journal) OnShutdown(s loop.Summary) {
	j.flush()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	endTime := s.Stats.Started.Add(s.Uptime)
	if err := j.store.FinishSession(ctx, j.sessionID, endTime, s); err != nil {
		j.logger.Warn("failed to finish session", slog.Any("error", err))
	}
}

func (j *Journal) flush() {
	if len(j.pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := j.store.StoreUplinks(ctx, j.sessionID, j.pending); err != nil {
		j.logger.Warn("failed to record uplinks", slog.Int("count", len(j.pending)), slog.Any("error", err))
	}
	j.pending = j.pending[:0]
}
