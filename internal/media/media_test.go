package media

import (
	"testing"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
	"github.com/nullkey-live/rtmpbroker/internal/rbuf"
	"github.com/nullkey-live/rtmpbroker/internal/rtmpmsg"
	"github.com/nullkey-live/rtmpbroker/internal/session"
)

type nullLogger struct{}

func (nullLogger) Info(string)                        {}
func (nullLogger) Warning(string)                      {}
func (nullLogger) Error(error)                         {}
func (nullLogger) Debug(string)                        {}
func (nullLogger) DebugSession(uint64, string, string) {}

var _ logging.Logger = nullLogger{}

type fakeSub struct {
	id       uint64
	sess     *session.Session
	received int
}

func newFakeSub(id uint64) *fakeSub {
	return &fakeSub{id: id, sess: session.New(id, "127.0.0.1:0")}
}

func (f *fakeSub) ID() uint64 { return f.id }
func (f *fakeSub) Write(msg *rtmpmsg.Message) error {
	f.received++
	msg.Release()
	return nil
}
func (f *fakeSub) WriteAndFlush(msg *rtmpmsg.Message) <-chan error {
	ch := make(chan error, 1)
	ch <- f.Write(msg)
	return ch
}
func (f *fakeSub) Close() error              { return nil }
func (f *fakeSub) Closed() bool              { return false }
func (f *fakeSub) Session() *session.Session { return f.sess }

func publisherConn() *fakeSub {
	c := newFakeSub(1)
	c.sess.SetApp("live")
	c.sess.SetStreamName("stream1")
	c.sess.SetRole(session.RolePublisher)
	return c
}

func videoMessage(keyFrame bool) *rtmpmsg.Message {
	b := byte(0x27)
	if keyFrame {
		b = 0x17
	}
	return rtmpmsg.New(rtmpmsg.TypeVideoData, 0, 1, rbuf.Wrap([]byte{b, 0, 0, 0}))
}

func audioMessage() *rtmpmsg.Message {
	return rtmpmsg.New(rtmpmsg.TypeAudioData, 0, 1, rbuf.Wrap([]byte{0xAF, 0x00, 0x12, 0x34}))
}

func TestHandleVideoCachesFirstKeyFrameAndResolvesReadiness(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, nullLogger{})
	pub := publisherConn()

	if err := h.HandleVideo(pub, videoMessage(false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.sess.KeyFrame() != nil {
		t.Fatalf("an inter frame must not be cached as the key frame")
	}

	if err := h.HandleVideo(pub, videoMessage(true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.sess.KeyFrame() == nil {
		t.Fatalf("expected the key frame to be cached")
	}
	streamKey, _ := pub.sess.StreamKey()
	if reg.LookupPublisher(streamKey) != pub {
		t.Fatalf("expected the publisher to be registered at its first key frame")
	}

	resolved := false
	pub.sess.Readiness.OnReady(func(s session.ReadyState) {
		resolved = s == session.Complete
	})
	if !resolved {
		t.Fatalf("expected readiness to resolve to Complete once a key frame is cached")
	}

	if err := h.HandleVideo(pub, videoMessage(true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleAudioCachesFirstSequenceHeaderOnly(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, nullLogger{})
	pub := publisherConn()

	if err := h.HandleAudio(pub, audioMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := pub.sess.FirstAudio()
	if first == nil {
		t.Fatalf("expected the first audio message to be cached")
	}

	if err := h.HandleAudio(pub, audioMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.sess.FirstAudio() != first {
		t.Fatalf("a later audio message must not replace the cached first one")
	}
}

func TestHandleDataCapturesMetadataAtAnyIndex(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, nullLogger{})
	pub := publisherConn()

	meta := amf0.NewObject()
	meta.Set("width", amf0.Number(1920))
	payload := amf0.EncodeAll(amf0.String("@setDataFrame"), amf0.String("onMetaData"), amf0.FromObject(meta))
	msg := rtmpmsg.New(rtmpmsg.TypeAmf0Data, 0, 1, rbuf.Wrap(payload))

	if err := h.HandleData(pub, msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := pub.sess.Metadata()
	if !ok {
		t.Fatalf("expected metadata to be captured despite the @setDataFrame prefix")
	}
	obj, err := amf0.AsObject(got)
	if err != nil {
		t.Fatalf("expected an object, got err: %v", err)
	}
	if _, ok := obj.Get("width"); !ok {
		t.Fatalf("expected the captured metadata to retain its fields")
	}
}

func TestFanOutSkipsPausedSubscribers(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, nullLogger{})
	pub := publisherConn()
	streamKey, _ := pub.sess.StreamKey()

	active := newFakeSub(2)
	paused := newFakeSub(3)
	paused.sess.SetPaused(true)
	reg.AddSubscriber(streamKey, active)
	reg.AddSubscriber(streamKey, paused)

	// The first key frame is cached and registers the publisher; it is
	// not fanned out. A second, non-key frame exercises fan-out.
	if err := h.HandleVideo(pub, videoMessage(true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.HandleVideo(pub, videoMessage(false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.received != 1 {
		t.Fatalf("expected the active subscriber to receive 1 message, got %d", active.received)
	}
	if paused.received != 0 {
		t.Fatalf("expected the paused subscriber to receive nothing, got %d", paused.received)
	}
}

func TestHandleVideoRegistersPublisherOnFirstKeyFrameAndRejectsDuplicate(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, nullLogger{})

	first := publisherConn()
	if err := h.HandleVideo(first, videoMessage(true)); err != nil {
		t.Fatalf("unexpected error for the winning publisher: %v", err)
	}
	streamKey, _ := first.sess.StreamKey()
	if reg.LookupPublisher(streamKey) != first {
		t.Fatalf("expected the first publisher to be registered at its first key frame")
	}

	second := newFakeSub(9)
	second.sess.SetApp("live")
	second.sess.SetStreamName("stream1")
	second.sess.SetRole(session.RolePublisher)
	if err := h.HandleVideo(second, videoMessage(true)); err == nil {
		t.Fatalf("expected the losing publisher's first key frame to fail registration")
	}
	if reg.LookupPublisher(streamKey) != first {
		t.Fatalf("the losing publisher must not replace the winner")
	}
}

func TestHandleVideoFromNonPublisherIsDropped(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, nullLogger{})
	conn := newFakeSub(1)
	conn.sess.SetApp("live")
	conn.sess.SetStreamName("stream1")
	conn.sess.SetRole(session.RoleSubscriber)

	if err := h.HandleVideo(conn, videoMessage(true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.sess.KeyFrame() != nil {
		t.Fatalf("a subscriber's video messages must never populate the key frame cache")
	}
}
