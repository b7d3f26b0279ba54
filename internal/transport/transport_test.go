package transport

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
)

func TestBuildChunksRoundTripsThroughChunkReader(t *testing.T) {
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire := buildChunks(uint8(rtmpmsg.TypeVideoData), 12345, 1, payload, 128)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = client.Write(wire)
	}()

	cr := NewChunkReader(server)
	msg, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer msg.Release()

	if msg.Type != rtmpmsg.TypeVideoData {
		t.Fatalf("expected TypeVideoData, got %v", msg.Type)
	}
	if msg.StreamID != 1 {
		t.Fatalf("expected stream id 1, got %d", msg.StreamID)
	}
	if msg.Timestamp != 12345 {
		t.Fatalf("expected timestamp 12345, got %d", msg.Timestamp)
	}
	if string(msg.Payload.Bytes()) != string(payload) {
		t.Fatalf("payload mismatch after chunk round trip")
	}
}

func TestSetChunkSizeIsInterceptedAndApplied(t *testing.T) {
	setChunkSize := make([]byte, 4)
	binary.BigEndian.PutUint32(setChunkSize, 4096)
	wire := buildChunks(uint8(rtmpmsg.TypeSetChunkSize), 0, 0, setChunkSize, 128)

	payload := make([]byte, 200) // larger than the default 128 but smaller than 4096
	wire = append(wire, buildChunks(uint8(rtmpmsg.TypeVideoData), 0, 1, payload, 4096)...)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = client.Write(wire)
	}()

	cr := NewChunkReader(server)
	msg, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer msg.Release()

	if msg.Type != rtmpmsg.TypeVideoData {
		t.Fatalf("expected the SET_CHUNK_SIZE control message to be intercepted, first surfaced message was %v", msg.Type)
	}
	if cr.inChunkSize != 4096 {
		t.Fatalf("expected inChunkSize to be updated to 4096, got %d", cr.inChunkSize)
	}
	if len(msg.Payload.Bytes()) != len(payload) {
		t.Fatalf("expected payload of length %d, got %d", len(payload), len(msg.Payload.Bytes()))
	}
}

func TestDetectClientMessageFormatFallsBackToSimpleHandshake(t *testing.T) {
	clientSig := make([]byte, handshakeSize)
	// An all-zero signature will not match either HMAC digest check, so
	// detection must fall back to the plain (pre-digest) handshake.
	if got := detectClientMessageFormat(clientSig); got != messageFormat0 {
		t.Fatalf("expected messageFormat0 for a non-digest signature, got %d", got)
	}
}

func TestGenerateS0S1S2SimpleHandshakeEchoesClientSignature(t *testing.T) {
	clientSig := make([]byte, handshakeSize)
	for i := range clientSig {
		clientSig[i] = byte(i)
	}

	resp, err := generateS0S1S2(clientSig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantLen := 1 + handshakeSize + handshakeSize
	if len(resp) != wantLen {
		t.Fatalf("expected response length %d, got %d", wantLen, len(resp))
	}
	if resp[0] != rtmpVersion {
		t.Fatalf("expected S0 to carry the RTMP version byte")
	}
	s1 := resp[1 : 1+handshakeSize]
	s2 := resp[1+handshakeSize:]
	if string(s1) != string(clientSig) {
		t.Fatalf("expected S1 to echo C1 in the simple handshake")
	}
	if string(s2) != string(clientSig) {
		t.Fatalf("expected S2 to echo C1 in the simple handshake")
	}
}

func TestGenerateS0S1S2RejectsWrongLength(t *testing.T) {
	if _, err := generateS0S1S2(make([]byte, 10)); err == nil {
		t.Fatalf("expected an error for a malformed handshake signature length")
	}
}
