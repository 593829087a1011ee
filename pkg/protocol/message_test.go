package protocol

import (
	"errors"
	"testing"
)

func TestDecodeMessage_operations(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		check func(t *testing.T, m *Message)
	}{
		{
			name:  "create room",
			frame: `{"operation":"CreateRoom","payload":""}`,
			check: func(t *testing.T, m *Message) {
				if m.Op != OpCreateRoom {
					t.Errorf("Op = %q", m.Op)
				}
			},
		},
		{
			name:  "delete room carries bare key",
			frame: `{"operation":"DeleteRoom","payload":"1234"}`,
			check: func(t *testing.T, m *Message) {
				if m.Key != "1234" {
					t.Errorf("Key = %q", m.Key)
				}
			},
		},
		{
			name:  "leave room carries bare key",
			frame: `{"operation":"LeaveRoom","payload":"42"}`,
			check: func(t *testing.T, m *Message) {
				if m.Key != "42" {
					t.Errorf("Key = %q", m.Key)
				}
			},
		},
		{
			name:  "join room payload is nested json",
			frame: `{"operation":"JoinRoom","payload":"{\"key\":\"7\",\"displayName\":\"alice\"}"}`,
			check: func(t *testing.T, m *Message) {
				if m.Join == nil || m.Join.Key != "7" || m.Join.DisplayName != "alice" {
					t.Errorf("Join = %+v", m.Join)
				}
			},
		},
		{
			name:  "stream data payload is nested json",
			frame: `{"operation":"StreamData","payload":"{\"roomKey\":\"7\",\"videoData\":\"QUJD\",\"last\":true}"}`,
			check: func(t *testing.T, m *Message) {
				if m.Stream == nil || m.Stream.RoomKey != "7" || m.Stream.VideoData != "QUJD" || !m.Stream.Last {
					t.Errorf("Stream = %+v", m.Stream)
				}
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, err := DecodeMessage([]byte(c.frame))
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if string(m.Raw) != c.frame {
				t.Errorf("Raw not preserved: %q", m.Raw)
			}
			c.check(t, m)
		})
	}
}

func TestDecodeMessage_errors(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"not json", `garbage`, ErrBadPayload},
		{"unknown operation", `{"operation":"Telemetry","payload":"x"}`, ErrUnknownOperation},
		{"delete without key", `{"operation":"DeleteRoom","payload":""}`, ErrBadPayload},
		{"join payload not json", `{"operation":"JoinRoom","payload":"1234"}`, ErrBadPayload},
		{"join without key", `{"operation":"JoinRoom","payload":"{\"displayName\":\"a\"}"}`, ErrBadPayload},
		{"stream payload not json", `{"operation":"StreamData","payload":"x"}`, ErrBadPayload},
		{"stream without room key", `{"operation":"StreamData","payload":"{\"videoData\":\"QUJD\"}"}`, ErrBadPayload},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := DecodeMessage([]byte(c.frame)); !errors.Is(err, c.wantErr) {
				t.Errorf("err = %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	payload, err := EncodeStreamPayload("55", "QUJD", false)
	if err != nil {
		t.Fatalf("EncodeStreamPayload: %v", err)
	}
	raw, err := EncodeEnvelope(OpStreamData, payload)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if m.Stream.RoomKey != "55" || m.Stream.VideoData != "QUJD" || m.Stream.Last {
		t.Errorf("Stream = %+v", m.Stream)
	}
}
