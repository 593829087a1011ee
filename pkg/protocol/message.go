// Package protocol defines the wire format of the signaling channel shared
// by the relay server and client endpoints.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire operation tags. Every frame on the signaling channel is an Envelope
// whose Operation selects how Payload is interpreted.
const (
	OpCreateRoom  = "CreateRoom"
	OpCreatedRoom = "CreatedRoom"
	OpDeleteRoom  = "DeleteRoom"
	OpDeletedRoom = "DeletedRoom"
	OpJoinRoom    = "JoinRoom"
	OpLeaveRoom   = "LeaveRoom"
	OpStreamData  = "StreamData"
	OpError       = "Error"

	// OpJoinedRoom keeps the wire spelling existing clients expect.
	OpJoinedRoom = "JoindedRoom"
)

var (
	// ErrUnknownOperation marks frames with an unrecognized operation tag.
	// They are ignored rather than rejected so newer clients can speak
	// operations this server does not know yet.
	ErrUnknownOperation = errors.New("protocol: unknown operation")
	// ErrBadPayload marks frames whose payload does not decode to the shape
	// the operation requires.
	ErrBadPayload = errors.New("protocol: bad payload")
)

// Envelope is the frame format on the signaling channel. Payload is an
// operation-specific string: a bare room key for DeleteRoom/LeaveRoom, a JSON
// document for JoinRoom/StreamData.
type Envelope struct {
	Operation string `json:"operation"`
	Payload   string `json:"payload"`
}

// JoinPayload is the JoinRoom payload.
type JoinPayload struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

// StreamPayload is the StreamData payload. VideoData carries one
// chunkcodec-encoded fragment of a media segment; Last flags the final
// fragment of the segment.
type StreamPayload struct {
	RoomKey   string `json:"roomKey"`
	VideoData string `json:"videoData"`
	Last      bool   `json:"last"`
}

// Message is one decoded inbound frame: the operation tag plus the payload
// variant for that operation. Raw keeps the original frame bytes so
// StreamData can be forwarded to viewers without re-serializing.
type Message struct {
	Op     string
	Key    string         // DeleteRoom, LeaveRoom
	Join   *JoinPayload   // JoinRoom
	Stream *StreamPayload // StreamData
	Raw    []byte
}

// DecodeMessage parses one frame into its typed form. Unknown operation tags
// return ErrUnknownOperation; payloads of the wrong shape return an error
// wrapping ErrBadPayload.
func DecodeMessage(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrBadPayload, err)
	}
	msg := &Message{Op: env.Operation, Raw: raw}

	switch env.Operation {
	case OpCreateRoom:
		return msg, nil

	case OpDeleteRoom, OpLeaveRoom:
		if env.Payload == "" {
			return nil, fmt.Errorf("%w: %s: missing room key", ErrBadPayload, env.Operation)
		}
		msg.Key = env.Payload
		return msg, nil

	case OpJoinRoom:
		var join JoinPayload
		if err := json.Unmarshal([]byte(env.Payload), &join); err != nil {
			return nil, fmt.Errorf("%w: JoinRoom: %v", ErrBadPayload, err)
		}
		if join.Key == "" {
			return nil, fmt.Errorf("%w: JoinRoom: missing room key", ErrBadPayload)
		}
		msg.Join = &join
		return msg, nil

	case OpStreamData:
		var stream StreamPayload
		if err := json.Unmarshal([]byte(env.Payload), &stream); err != nil {
			return nil, fmt.Errorf("%w: StreamData: %v", ErrBadPayload, err)
		}
		if stream.RoomKey == "" {
			return nil, fmt.Errorf("%w: StreamData: missing room key", ErrBadPayload)
		}
		msg.Stream = &stream
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, env.Operation)
	}
}

// EncodeEnvelope serializes one outbound frame.
func EncodeEnvelope(operation, payload string) ([]byte, error) {
	return json.Marshal(Envelope{Operation: operation, Payload: payload})
}

// EncodeJoinPayload serializes a JoinRoom payload for the wire.
func EncodeJoinPayload(key, displayName string) (string, error) {
	b, err := json.Marshal(JoinPayload{Key: key, DisplayName: displayName})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeStreamPayload serializes a StreamData payload for the wire.
func EncodeStreamPayload(roomKey, videoData string, last bool) (string, error) {
	b, err := json.Marshal(StreamPayload{RoomKey: roomKey, VideoData: videoData, Last: last})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
