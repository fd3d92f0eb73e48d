package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("should decode a join envelope", func(t *testing.T) {
		req := require.New(t)
		m, err := Decode([]byte(`{"type":"join","payload":{"roomId":"r1"}}`))
		req.NoError(err)
		req.Equal(Join{RoomID: "r1"}, m)
	})

	t.Run("should decode a candidate with optional fields", func(t *testing.T) {
		req := require.New(t)
		m, err := Decode([]byte(`{"type":"ice-candidate","payload":{"target":"h2","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}}`))
		req.NoError(err)
		ice, ok := m.(ICECandidate)
		req.True(ok)
		req.Equal(domain.Handle("h2"), ice.Target)
		req.NotNil(ice.Candidate.SDPMid)
		req.Equal("0", *ice.Candidate.SDPMid)
		req.NotNil(ice.Candidate.SDPMLineIndex)
		req.Equal(uint16(0), *ice.Candidate.SDPMLineIndex)
		req.Nil(ice.Candidate.UsernameFragment)
	})

	t.Run("should accept kinds without payload", func(t *testing.T) {
		req := require.New(t)
		m, err := Decode([]byte(`{"type":"ping"}`))
		req.NoError(err)
		req.Equal(KindPing, m.Kind())
	})

	t.Run("should reject unknown kinds", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":"teleport","payload":{}}`))
		require.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("should reject malformed frames", func(t *testing.T) {
		req := require.New(t)
		_, err := Decode([]byte(`not json`))
		req.ErrorIs(err, ErrBadPayload)
		_, err = Decode([]byte(`{"type":"join","payload":{"roomId":5}}`))
		req.ErrorIs(err, ErrBadPayload)
	})
}

func TestEncode(t *testing.T) {
	t.Run("should wrap payload in a typed envelope", func(t *testing.T) {
		req := require.New(t)
		data, err := Encode(MemberJoined{Participant: domain.Participant{Handle: "h1", Identity: "alice"}})
		req.NoError(err)
		req.JSONEq(`{"type":"member-joined","payload":{"handle":"h1","identity":"alice"}}`, string(data))
	})

	t.Run("should keep an empty member list as an array", func(t *testing.T) {
		req := require.New(t)
		data, err := Encode(ExistingMembers{RoomID: "r1", Members: []domain.Participant{}})
		req.NoError(err)
		req.JSONEq(`{"type":"existing-members","payload":{"roomId":"r1","members":[]}}`, string(data))
	})

	t.Run("should omit a zero chat timestamp", func(t *testing.T) {
		req := require.New(t)
		data, err := Encode(ChatMessage{RoomID: "r1", Text: "hi"})
		req.NoError(err)
		var env Envelope
		req.NoError(json.Unmarshal(data, &env))
		req.JSONEq(`{"roomId":"r1","text":"hi"}`, string(env.Payload))
	})

	t.Run("should survive a decode of every relayed variant", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for _, m := range []Message{
			Offer{Target: "h2", From: "h1", Identity: "alice", SDP: "v=0"},
			Answer{Target: "h1", From: "h2", Identity: "bob", SDP: "v=0"},
			ChatMessage{RoomID: "r1", Sender: "alice", Text: "hi", Timestamp: at},
			RoomClosed{RoomID: "r1"},
			Error{Code: CodeNotInRoom, Message: "join a room first"},
		} {
			t.Run(string(m.Kind()), func(t *testing.T) {
				req := require.New(t)
				data, err := Encode(m)
				req.NoError(err)
				got, err := Decode(data)
				req.NoError(err)
				req.Equal(m, got)
			})
		}
	})
}
