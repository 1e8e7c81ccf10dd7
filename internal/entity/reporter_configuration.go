package entity

import (
	"encoding/json"
	"time"
)

// ReporterConfig holds the heartbeat settings read once at startup.
type ReporterConfig struct {
	// Enabled is false when no report must be sent.
	Enabled bool

	// Endpoint is the url of the api server.
	Endpoint string

	// Interval between two reports.
	Interval time.Duration

	// DeviceID identifies this device on the api server.
	DeviceID string

	// Timeout bounds a single report.
	Timeout time.Duration

	// Summaries enables system and process summaries in the payload.
	Summaries bool

	// Ports enables listen ports in the payload.
	Ports bool
}

func (r ReporterConfig) String() string {
	json, err := json.Marshal(r)
	if err != nil {
		return err.Error()
	}

	return string(json)
}
