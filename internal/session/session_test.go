package session

import (
	"testing"

	"github.com/nullkey-live/rtmpbroker/internal/rbuf"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
)

func fakeMessage(keyFrame bool) *rtmpmsg.Message {
	b := byte(0x20) // inter frame
	if keyFrame {
		b = 0x10 // key frame
	}
	return rtmpmsg.New(rtmpmsg.TypeVideoData, 0, 1, rbuf.Wrap([]byte{b, 0, 0, 0}))
}

func TestSetRoleIsAtMostOnce(t *testing.T) {
	s := New(1, "127.0.0.1:1234")
	if !s.SetRole(RolePublisher) {
		t.Fatalf("first SetRole should succeed")
	}
	if s.SetRole(RoleSubscriber) {
		t.Fatalf("a second, different SetRole should fail")
	}
	if !s.SetRole(RolePublisher) {
		t.Fatalf("re-asserting the same role should report success")
	}
	if s.Role() != RolePublisher {
		t.Fatalf("role should remain RolePublisher")
	}
}

func TestStreamKeyRequiresAppAndStreamName(t *testing.T) {
	s := New(1, "127.0.0.1:1234")
	if _, ok := s.StreamKey(); ok {
		t.Fatalf("stream key should be undefined before app/streamName are set")
	}
	s.SetApp("live")
	if _, ok := s.StreamKey(); ok {
		t.Fatalf("stream key should still be undefined with only app set")
	}
	s.SetStreamName("abc123")
	key, ok := s.StreamKey()
	if !ok || key != "live/abc123" {
		t.Fatalf("expected stream key live/abc123, got %q (ok=%v)", key, ok)
	}
}

func TestKeyFrameSetOnce(t *testing.T) {
	s := New(1, "127.0.0.1:1234")
	if s.KeyFrame() != nil {
		t.Fatalf("key frame should start nil")
	}
	first := fakeMessage(true)
	if !s.SetKeyFrame(first) {
		t.Fatalf("first SetKeyFrame should succeed")
	}
	second := fakeMessage(true)
	if s.SetKeyFrame(second) {
		t.Fatalf("a second SetKeyFrame should be rejected")
	}
	if s.KeyFrame() != first {
		t.Fatalf("cached key frame should remain the first one set")
	}
	if s.State() != StateComplete {
		t.Fatalf("state should transition to Complete once a key frame is cached")
	}
}

func TestFirstAudioSetOnce(t *testing.T) {
	s := New(1, "127.0.0.1:1234")
	a := fakeMessage(false)
	if !s.SetFirstAudio(a) {
		t.Fatalf("first SetFirstAudio should succeed")
	}
	if s.SetFirstAudio(fakeMessage(false)) {
		t.Fatalf("a second SetFirstAudio should be rejected")
	}
}
