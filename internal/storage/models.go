package storage

import (
	"database/sql"
	"time"
)

// Session describes a new run of the uplink agent
type Session struct {
	RunID     string
	DroneID   string
	Target    string
	Endpoint  string
	StartTime time.Time
	Config    any // string, []byte or a JSON-serializable value
}

// SessionData is a stored session. End time, final state and exit error are
// set once the session has been finished.
type SessionData struct {
	ID         int64
	RunID      string
	StartTime  time.Time
	EndTime    sql.NullTime
	DroneID    string
	Target     string
	Endpoint   string
	Config     sql.NullString
	Sent       int
	Failed     int
	FinalState sql.NullString
	ExitError  sql.NullString
}

// UplinkData is a single send attempt together with the reading it carried
type UplinkData struct {
	ID          int64
	SessionID   int64
	Timestamp   time.Time // start of the tick
	ReadingTime time.Time
	Latitude    float64
	Longitude   float64
	Altitude    float64
	Heading     float64
	GroundSpeed float64
	Satellites  int
	FixType     int
	Outcome     string
	StatusCode  sql.NullInt64
	Message     sql.NullString
	LatencyMs   int64
}

// TransitionData is a stored connection state change
type TransitionData struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	FromState string
	ToState   string
	Reason    string
	Error     sql.NullString
}
