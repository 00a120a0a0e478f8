// Package protocol defines the WebSocket message types exchanged between
// clients and the gateway. All messages are serialized as JSON and follow a
// consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types.
const (
	TypeLogin        = "login"
	TypeRequestMatch = "requestMatch"
	TypeCancel       = "cancel"
	TypePing         = "ping"
)

// Server -> Client message types. The outcome events mirror the subjects
// the matcher publishes per user.
const (
	TypeLoggedIn     = "loggedIn"
	TypeMatchFound   = "matchFound"
	TypeNoMatchFound = "noMatchFound"
	TypeCancelled    = "cancelled"
	TypeError        = "error"
	TypePong         = "pong"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// LoginMsg associates the connection with a logical user identity. All
// later messages on the connection act on behalf of this user.
type LoginMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RequestMatchMsg asks to be paired with a partner matching the filters.
type RequestMatchMsg struct {
	Type       string   `json:"type"`
	Difficulty string   `json:"difficulty"`
	Language   string   `json:"language,omitempty"`
	Categories []string `json:"categories"`
}

// CancelMsg withdraws the pending match request.
type CancelMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// LoggedInMsg confirms the login and echoes the bound identity.
type LoggedInMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// MatchFoundMsg tells the client a partner was found.
type MatchFoundMsg struct {
	Type             string   `json:"type"`
	MatchID          string   `json:"matchId"`
	PartnerID        string   `json:"partnerId"`
	PartnerName      string   `json:"partnerName"`
	Difficulty       string   `json:"difficulty"`
	Language         string   `json:"language,omitempty"`
	SharedCategories []string `json:"sharedCategories"`
}

// NoMatchFoundMsg tells the client the wait elapsed with no partner.
type NoMatchFoundMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CancelledMsg acknowledges a cancellation.
type CancelledMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMsg communicates an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeLogin:
		var m LoginMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRequestMatch:
		var m RequestMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancel:
		var m CancelMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
