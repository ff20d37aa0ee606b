// Package protocol defines the JSON messages exchanged between go-manual and
// a presentation layer (UI, CLI) over HTTP and WebSocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// UI → daemon commands
	TypeSetPosition    MessageType = "set_position"     // Any subset of x/y/z
	TypeSetGroundPoint MessageType = "set_ground_point" // Point picked on the top-down map
	TypeSetAzimuth     MessageType = "set_azimuth"
	TypeSetElevation   MessageType = "set_elevation"
	TypeSetContext     MessageType = "set_context"
	TypeSetIdentity    MessageType = "set_identity"
	TypeSetLinked      MessageType = "set_linked"
	TypeSetActive      MessageType = "set_active"
	TypeReset          MessageType = "reset"
	TypeUnlock         MessageType = "unlock"
	TypeGetState       MessageType = "get_state"
	TypeGetStats       MessageType = "get_stats"

	// Daemon → UI events
	TypeState MessageType = "state" // Full state, on request or on the broadcast cadence
	TypeEvent MessageType = "event" // A store event: changed, unlocked or reset
	TypeStats MessageType = "stats"
	TypeError MessageType = "error"

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// PositionData sets coordinates. Nil fields are left unchanged.
type PositionData struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// NewPositionMessage creates a set_position command for all three coordinates
func NewPositionMessage(x, y, z float64) (*Message, error) {
	return NewMessage(TypeSetPosition, PositionData{X: &x, Y: &y, Z: &z})
}

// GroundPointData is a point on the top-down map (x right, y towards the viewer)
type GroundPointData struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// AngleData sets an angle in degrees.
// Signed selects the -180..180 / -90..90 convention instead of the
// 0..360 / dial convention.
type AngleData struct {
	Value  *int `json:"value"`
	Signed bool `json:"signed,omitempty"`
}

// TextData carries a context or identity string
type TextData struct {
	Value *string `json:"value"`
}

// FlagData carries a linked or active toggle
type FlagData struct {
	Value *bool `json:"value"`
}

// NewGroundPointData builds a complete ground point payload
func NewGroundPointData(x, y float64) GroundPointData {
	return GroundPointData{X: &x, Y: &y}
}

// NewAngleData builds an angle payload
func NewAngleData(degrees int, signed bool) AngleData {
	return AngleData{Value: &degrees, Signed: signed}
}

// NewTextData builds a text payload. An empty string is a valid value.
func NewTextData(value string) TextData {
	return TextData{Value: &value}
}

// NewFlagData builds a flag payload
func NewFlagData(value bool) FlagData {
	return FlagData{Value: &value}
}

// ErrorData describes a rejected command
type ErrorData struct {
	Message string `json:"message"`
}

// ErrMissingValue is returned when a command carries no value to apply
var ErrMissingValue = errors.New("missing value")

// GetPositionData extracts position data from a message.
// At least one coordinate must be present.
func (m *Message) GetPositionData() (*PositionData, error) {
	var data PositionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.X == nil && data.Y == nil && data.Z == nil {
		return nil, fmt.Errorf("no coordinates given: %w", ErrMissingValue)
	}
	return &data, nil
}

// GetGroundPointData extracts ground point data from a message.
// Both x and y must be present.
func (m *Message) GetGroundPointData() (*GroundPointData, error) {
	var data GroundPointData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.X == nil || data.Y == nil {
		return nil, fmt.Errorf("ground point needs x and y: %w", ErrMissingValue)
	}
	return &data, nil
}

// GetAngleData extracts angle data from a message
func (m *Message) GetAngleData() (*AngleData, error) {
	var data AngleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Value == nil {
		return nil, ErrMissingValue
	}
	return &data, nil
}

// GetTextData extracts text data from a message
func (m *Message) GetTextData() (*TextData, error) {
	var data TextData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Value == nil {
		return nil, ErrMissingValue
	}
	return &data, nil
}

// GetFlagData extracts flag data from a message
func (m *Message) GetFlagData() (*FlagData, error) {
	var data FlagData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Value == nil {
		return nil, ErrMissingValue
	}
	return &data, nil
}
