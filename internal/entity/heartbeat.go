package entity

import (
	"encoding/json"

	"github.com/go-openapi/strfmt"
)

// Heartbeat is the report sent to the api server. It is built for a single report and
// discarded after transmission.
type Heartbeat struct {
	// DeviceID identifies the device running the media server.
	DeviceID string `json:"device_id"`

	// IP is the local address picked for this server. Empty if no address was found.
	IP string `json:"ip"`

	// ServerID is random per process.
	ServerID string `json:"server"`

	// ServiceID is random per process start.
	ServiceID string `json:"service"`

	// Pid of the process.
	Pid int `json:"pid"`

	// Timestamp when the heartbeat was built.
	Timestamp strfmt.DateTime `json:"timestamp"`

	// Summaries is set only when summaries are enabled.
	Summaries *Summaries `json:"summaries,omitempty"`

	// listen ports. Set only when ports are enabled.
	RTMP []string `json:"rtmp,omitempty"`
	HTTP []string `json:"http,omitempty"`
	API  []string `json:"api,omitempty"`
	SRT  []string `json:"srt,omitempty"`
	RTC  []string `json:"rtc,omitempty"`

	// Extra holds additional fields which are flattened into the json object.
	// Fields above always take precedence over extra fields with the same name.
	Extra map[string]interface{} `json:"-"`
}

// heartbeatAlias drops the MarshalJSON method to avoid recursion.
type heartbeatAlias Heartbeat

func (h Heartbeat) MarshalJSON() ([]byte, error) {
	core, err := json.Marshal(heartbeatAlias(h))
	if err != nil {
		return nil, err
	}

	if len(h.Extra) == 0 {
		return core, nil
	}

	fields := make(map[string]json.RawMessage, len(h.Extra))
	for k, v := range h.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}

	var coreFields map[string]json.RawMessage
	if err := json.Unmarshal(core, &coreFields); err != nil {
		return nil, err
	}

	for k, v := range coreFields {
		fields[k] = v
	}

	return json.Marshal(fields)
}

type Summaries struct {
	// NowMs is the time of sampling in milliseconds since epoch.
	NowMs int64 `json:"now_ms"`

	Self   SelfSummary   `json:"self"`
	System SystemSummary `json:"system"`

	// Streams is the number of active streams reported by the media server.
	Streams int `json:"streams"`

	// Clients is the number of connected clients reported by the media server.
	Clients int `json:"clients"`
}

// SelfSummary describes the reporting process.
type SelfSummary struct {
	Version    string   `json:"version"`
	Pid        int      `json:"pid"`
	Ppid       int      `json:"ppid"`
	Argv       []string `json:"argv"`
	Cwd        string   `json:"cwd"`
	MemKbyte   uint64   `json:"mem_kbyte"`
	MemPercent float32  `json:"mem_percent"`
	CPUPercent float64  `json:"cpu_percent"`
	// Uptime of the process in seconds.
	Uptime int64 `json:"uptime"`
}

// SystemSummary describes the host.
type SystemSummary struct {
	CPUPercent     float64 `json:"cpu_percent"`
	CPUs           int     `json:"cpus"`
	CPUsOnline     int     `json:"cpus_online"`
	MemRAMKbyte    uint64  `json:"mem_ram_kbyte"`
	MemRAMPercent  float64 `json:"mem_ram_percent"`
	MemSwapKbyte   uint64  `json:"mem_swap_kbyte"`
	MemSwapPercent float64 `json:"mem_swap_percent"`
	Load1m         float64 `json:"load_1m"`
	Load5m         float64 `json:"load_5m"`
	Load15m        float64 `json:"load_15m"`
	// Uptime of the host in seconds.
	Uptime       uint64  `json:"uptime"`
	NetSendBytes uint64  `json:"net_send_bytes"`
	NetRecvBytes uint64  `json:"net_recv_bytes"`
	DiskPercent  float64 `json:"disk_percent"`
}
