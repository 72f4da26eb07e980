package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
)

const (
	uplinkColumns = 14

	// maxUplinksPerInsert keeps a multi-row INSERT below the Sqlite limit of
	// 32766 bound variables.
	maxUplinksPerInsert = 500
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, session Session) (sessionID int64, err error) {
	configData, err := toConfigData(session.Config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		session.RunID,
		session.StartTime.UTC(),
		session.DroneID,
		session.Target,
		session.Endpoint,
		configData,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) FinishSession(ctx context.Context, sessionID int64, endTime time.Time, summary loop.Summary) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(
		ctx,
		finishSessionSQL,
		endTime.UTC(),
		summary.Stats.Sent,
		summary.Stats.Failed,
		summary.State.String(),
		toNullError(summary.Err),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, sql.ErrNoRows)
	}
	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *SessionData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	sess, err := scanSession(stmt.QueryRowContext(ctx, id))
	if err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return sess, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*SessionData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *SessionData
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

func scanSession(row interface{ Scan(...any) error }) (*SessionData, error) {
	var sess SessionData
	err := row.Scan(
		&sess.ID,
		&sess.RunID,
		&sess.StartTime,
		&sess.EndTime,
		&sess.DroneID,
		&sess.Target,
		&sess.Endpoint,
		&sess.Config,
		&sess.Sent,
		&sess.Failed,
		&sess.FinalState,
		&sess.ExitError,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SqliteStore) StoreUplinks(ctx context.Context, sessionID int64, ticks []loop.Tick) (err error) {
	if len(ticks) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for chunk := range slices.Chunk(ticks, maxUplinksPerInsert) {
		if err = insertUplinks(ctx, tx, sessionID, chunk); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// insertUplinks writes ticks with a single multi-row INSERT.
func insertUplinks(ctx context.Context, tx *sql.Tx, sessionID int64, ticks []loop.Tick) error {
	const valuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	values := make([]any, 0, len(ticks)*uplinkColumns)

	var sb strings.Builder
	sb.WriteString(insertUplinkSQL)

	for i, t := range ticks {
		data := toUplinkData(sessionID, t)
		values = append(values,
			data.SessionID,
			data.Timestamp,
			data.ReadingTime,
			data.Latitude,
			data.Longitude,
			data.Altitude,
			data.Heading,
			data.GroundSpeed,
			data.Satellites,
			data.FixType,
			data.Outcome,
			data.StatusCode,
			data.Message,
			data.LatencyMs,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting uplinks: %w", err)
	}
	return nil
}

func (s *SqliteStore) Uplinks(ctx context.Context, sessionID int64) (uplinks []*UplinkData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectUplinksSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying uplinks: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var u UplinkData
		err = rows.Scan(
			&u.ID,
			&u.SessionID,
			&u.Timestamp,
			&u.ReadingTime,
			&u.Latitude,
			&u.Longitude,
			&u.Altitude,
			&u.Heading,
			&u.GroundSpeed,
			&u.Satellites,
			&u.FixType,
			&u.Outcome,
			&u.StatusCode,
			&u.Message,
			&u.LatencyMs,
		)
		if err != nil {
			err = fmt.Errorf("scanning uplink: %w", err)
			return
		}
		uplinks = append(uplinks, &u)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreTransition(ctx context.Context, sessionID int64, t link.Transition) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	data := toTransitionData(sessionID, t)

	_, err = db.ExecContext(
		ctx,
		insertTransitionSQL,
		data.SessionID,
		data.Timestamp,
		data.FromState,
		data.ToState,
		data.Reason,
		data.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

func (s *SqliteStore) Transitions(ctx context.Context, sessionID int64) (transitions []*TransitionData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectTransitionsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying transitions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var t TransitionData
		if err = rows.Scan(&t.ID, &t.SessionID, &t.Timestamp, &t.FromState, &t.ToState, &t.Reason, &t.Error); err != nil {
			err = fmt.Errorf("scanning transition: %w", err)
			return
		}
		transitions = append(transitions, &t)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
