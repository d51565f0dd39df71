package network

import (
	"encoding/json"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"goblet/internal/game"
	"goblet/internal/world"
)

type MessageType string

const (
	MessageHello      MessageType = "hello"
	MessageKeepAlive  MessageType = "keepAlive"
	MessageViewpoint  MessageType = "viewpoint"
	MessageInput      MessageType = "input"
	MessageChunkLoad  MessageType = "chunkLoad"
	MessageChunkEvict MessageType = "chunkEvict"
	MessageAction     MessageType = "action"
	MessageState      MessageType = "state"
	MessageError      MessageType = "error"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// Hello is the first message of every session.
type Hello struct {
	SessionID      string `json:"sessionId"`
	Seed           string `json:"seed"`
	Algorithm      string `json:"algorithm"`
	Seeding        string `json:"seeding"`
	ChunkSize      int    `json:"chunkSize"`
	RenderDistance int    `json:"renderDistance"`
}

type KeepAlive struct {
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
}

// Viewpoint moves the camera the session streams around.
type Viewpoint struct {
	Position mgl64.Vec3 `json:"position"`
}

type ChunkLoad struct {
	Center world.ChunkCoord   `json:"center"`
	Chunks []*world.ChunkData `json:"chunks"`
}

type ChunkEvict struct {
	Chunks []world.ChunkCoord `json:"chunks"`
}

// StateUpdate carries the session snapshot.
type StateUpdate struct {
	State game.State `json:"state"`
	Body  game.Body  `json:"body"`
}

// ErrorMessage reports a rejected client message by its sequence number.
type ErrorMessage struct {
	RequestSeq uint64 `json:"requestSeq"`
	Message    string `json:"message"`
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(env.Payload, v)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

// NewEnvelope wraps payload with a type, timestamp and sequence number.
func NewEnvelope(msgType MessageType, seq uint64, payload any) (Envelope, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       seq,
		Payload:   raw,
	}, nil
}
