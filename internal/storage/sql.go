package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_uplinks_session_time ON uplinks (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_uplinks_outcome ON uplinks (session_id, outcome);
CREATE INDEX IF NOT EXISTS idx_transitions_session_time ON transitions (session_id, timestamp);`

	insertSessionSQL = `
INSERT INTO sessions (run_id,
                      start_time,
                      drone_id,
                      target,
                      endpoint,
                      config)
VALUES (?, ?, ?, ?, ?, ?)`

	finishSessionSQL = `
UPDATE sessions
SET end_time    = ?,
    sent        = ?,
    failed      = ?,
    final_state = ?,
    exit_error  = ?
WHERE id = ?`

	selectSessionSQL = `
SELECT id,
       run_id,
       start_time,
       end_time,
       drone_id,
       target,
       endpoint,
       config,
       sent,
       failed,
       final_state,
       exit_error
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       run_id,
       start_time,
       end_time,
       drone_id,
       target,
       endpoint,
       config,
       sent,
       failed,
       final_state,
       exit_error
FROM sessions
ORDER BY start_time, id`

	insertUplinkSQL = `
INSERT INTO uplinks (session_id,
                     timestamp,
                     reading_time,
                     latitude,
                     longitude,
                     altitude,
                     heading,
                     ground_speed,
                     satellites,
                     fix_type,
                     outcome,
                     status_code,
                     message,
                     latency_ms)
VALUES `

	selectUplinksSQL = `
SELECT id,
       session_id,
       timestamp,
       reading_time,
       latitude,
       longitude,
       altitude,
       heading,
       ground_speed,
       satellites,
       fix_type,
       outcome,
       status_code,
       message,
       latency_ms
FROM uplinks
WHERE session_id = ?
ORDER BY timestamp, id`

	insertTransitionSQL = `
INSERT INTO transitions (session_id,
                         timestamp,
                         from_state,
                         to_state,
                         reason,
                         error)
VALUES (?, ?, ?, ?, ?, ?)`

	selectTransitionsSQL = `
SELECT id,
       session_id,
       timestamp,
       from_state,
       to_state,
       reason,
       error
FROM transitions
WHERE session_id = ?
ORDER BY timestamp, id`
)
