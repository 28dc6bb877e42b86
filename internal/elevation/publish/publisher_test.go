package publish

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitForSubscribers(t *testing.T, p *Publisher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.SubscriberCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d (now %d)", want, p.SubscriberCount())
}

func TestPublisher_StartStop(t *testing.T) {
	p := NewPublisher(Config{ListenAddr: "127.0.0.1:0"})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); err == nil {
		t.Error("second Start did not fail")
	}
	if p.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", p.SubscriberCount())
	}
	p.Stop()
	if p.Stats().Running {
		t.Error("publisher still reports running after Stop")
	}
}

func TestPublisher_DeliversSnapshots(t *testing.T) {
	p := NewPublisher(Config{ListenAddr: "127.0.0.1:0"})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+p.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	waitForSubscribers(t, p, 1)

	in := testSnapshot()
	p.Publish(in)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	out, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if out.Rows != in.Rows || out.Cols != in.Cols || out.FrameID != in.FrameID {
		t.Fatalf("delivered snapshot mismatch: %dx%d %q", out.Rows, out.Cols, out.FrameID)
	}
}

func TestPublisher_CountsDisconnects(t *testing.T) {
	p := NewPublisher(Config{ListenAddr: "127.0.0.1:0"})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+p.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitForSubscribers(t, p, 1)

	conn.Close()
	waitForSubscribers(t, p, 0)
}

func TestPublisher_PublishWhileStoppedIsNoop(t *testing.T) {
	p := NewPublisher(Config{ListenAddr: "127.0.0.1:0"})
	p.Publish(testSnapshot())
	if p.Stats().FrameCount != 0 {
		t.Errorf("FrameCount = %d before Start, want 0", p.Stats().FrameCount)
	}
}
