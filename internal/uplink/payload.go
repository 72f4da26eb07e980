package uplink

import (
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

// TimestampLayout is the ISO-8601 UTC layout of payload timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Payload is the JSON document posted to the collector.
type Payload struct {
	DroneID     string  `json:"droneId"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    float64 `json:"altitude"`
	Timestamp   string  `json:"timestamp"`
	Heading     float64 `json:"heading"`
	GroundSpeed float64 `json:"groundspeed"`
	Satellites  int     `json:"satellites"`
	GPSFixType  int     `json:"gps_fix_type"`
}

// NewPayload maps a reading to the wire format without unit conversion.
func NewPayload(r telemetry.Reading, droneID string) Payload {
	return Payload{
		DroneID:     droneID,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Altitude:    r.Altitude,
		Timestamp:   r.Timestamp.UTC().Format(TimestampLayout),
		Heading:     r.Heading,
		GroundSpeed: r.GroundSpeed,
		Satellites:  r.SatelliteCount,
		GPSFixType:  r.FixType,
	}
}
