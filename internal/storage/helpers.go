package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toConfigData(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	default:
		p, err := json.Marshal(c)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toUplinkData(sessionID int64, t loop.Tick) *UplinkData {
	data := UplinkData{
		SessionID:   sessionID,
		Timestamp:   t.At.UTC(),
		ReadingTime: t.Reading.Timestamp.UTC(),
		Latitude:    t.Reading.Latitude,
		Longitude:   t.Reading.Longitude,
		Altitude:    t.Reading.Altitude,
		Heading:     t.Reading.Heading,
		GroundSpeed: t.Reading.GroundSpeed,
		Satellites:  t.Reading.SatelliteCount,
		FixType:     t.Reading.FixType,
		Outcome:     t.Outcome.Kind.String(),
		Message:     toNullString(t.Outcome.Message),
		LatencyMs:   t.Outcome.Latency.Milliseconds(),
	}
	if t.Outcome.StatusCode != 0 {
		data.StatusCode = sql.NullInt64{Int64: int64(t.Outcome.StatusCode), Valid: true}
	}
	return &data
}

func toTransitionData(sessionID int64, t link.Transition) *TransitionData {
	return &TransitionData{
		SessionID: sessionID,
		Timestamp: t.At.UTC(),
		FromState: t.From.String(),
		ToState:   t.To.String(),
		Reason:    t.Reason,
		Error:     toNullError(t.Err),
	}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullError(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
