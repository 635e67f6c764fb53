package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RiderName       string `json:"rider_name"`
	Vehicle         string `json:"vehicle"`
	ResumeToken     string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	RiderID         string      `json:"rider_id"`
	ResumeToken     string      `json:"resume_token"`
	Vehicle         string      `json:"vehicle"`
	WorldParams     WorldParams `json:"world_params"`
	Map             MapRef      `json:"map"`
}

type WorldParams struct {
	WorldID    string `json:"world_id"`
	TickRateHz int    `json:"tick_rate_hz"`
	Tick       uint64 `json:"tick"`
}

type MapRef struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Digest string `json:"digest"`
}

// INPUT (client -> server). Held replaces the rider's held command set.
type InputMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Held            []string `json:"held"`
}

// STATE (server -> client), one per tick.
type StateMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	RiderID         string           `json:"rider_id"`
	Self            RiderState       `json:"self"`
	Events          []string         `json:"events,omitempty"`
	Counters        map[string]int64 `json:"counters,omitempty"`
}

type RiderState struct {
	Vehicle string     `json:"vehicle"`
	Pos     [3]float64 `json:"pos"`
	Yaw     float64    `json:"yaw"`
	Speed   float64    `json:"speed"`
	State   string     `json:"state"`

	// Grid riders.
	Cell   *[2]int `json:"cell,omitempty"`
	Facing string  `json:"facing,omitempty"`

	// Track riders.
	OnMain  bool         `json:"on_main,omitempty"`
	Branch  string       `json:"branch,omitempty"`
	Segment int          `json:"segment,omitempty"`
	Corner  *CornerState `json:"corner,omitempty"`
}

type CornerState struct {
	Node int `json:"node"`
	Sign int `json:"sign"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
