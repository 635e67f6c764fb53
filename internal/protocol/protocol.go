package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeInput   = "INPUT"
	TypeState   = "STATE"
	TypeError   = "ERROR"
)

// Vehicle kinds a rider can join with.
const (
	VehicleGrid  = "grid"
	VehicleTrack = "track"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// NewError builds an ERROR message; unknown codes are reported as E_INTERNAL.
func NewError(code, message string) ErrorMsg {
	if code == "" || !IsKnownCode(code) {
		code = ErrInternal
	}
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
