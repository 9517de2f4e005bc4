package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/gorilla/websocket"

	"mavgate/pkg/config"
	"mavgate/pkg/transport"
)

type fakeSource struct {
	frames chan transport.Frame
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan transport.Frame, 16)}
}

func (f *fakeSource) Run(ctx context.Context) {
	<-ctx.Done()
	close(f.frames)
}

func (f *fakeSource) Frames() <-chan transport.Frame {
	return f.frames
}

func (f *fakeSource) push(msg message.Message, sysID byte) {
	f.frames <- transport.Frame{
		Msg:      msg,
		SystemID: sysID,
		Received: time.Now(),
	}
}

type wireEnvelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func startGateway(t *testing.T, cfg config.Config) (*fakeSource, *websocket.Conn, context.CancelFunc) {
	t.Helper()

	src := newFakeSource()
	gw, err := New(cfg, WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = gw.Run(ctx) }()
	select {
	case <-gw.Server().Ready():
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("gateway did not start")
	}

	url := "ws://" + gw.Server().Addr() + cfg.WebSocket.Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	return src, conn, cancel
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return env
}

// testConfig binds an ephemeral port so parallel test runs never collide.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.WebSocket.Host = "127.0.0.1"
	cfg.WebSocket.Port = 0
	return cfg
}

func TestAttitudeOnlyFilterEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Filter.Allow = []string{"ATTITUDE"}
	cfg.Filter.MaxRate = 0

	src, conn, cancel := startGateway(t, cfg)
	defer cancel()
	defer conn.Close()

	if env := readEnvelope(t, conn); env.Type != "DRONE_STATE" {
		t.Fatalf("first envelope = %q, want DRONE_STATE", env.Type)
	}

	src.push(&common.MessageHeartbeat{Type: common.MAV_TYPE_QUADROTOR}, 1)
	src.push(&common.MessageAttitude{Roll: 0.01, Pitch: -0.02, Yaw: 3.14}, 1)

	env := readEnvelope(t, conn)
	if env.Type != "ATTITUDE" {
		t.Fatalf("broadcast type = %q, want ATTITUDE (heartbeat must be filtered)", env.Type)
	}
	var data map[string]float64
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got := data["yaw"]; got < 3.13 || got > 3.15 {
		t.Errorf("yaw = %g, want 3.14", got)
	}
}

func TestStateReflectsOnlyAdmittedMessages(t *testing.T) {
	cfg := testConfig()
	cfg.Filter.Ignore = []string{"GPS_RAW_INT"}
	cfg.Filter.MaxRate = 0

	src, conn, cancel := startGateway(t, cfg)
	defer cancel()
	defer conn.Close()
	readEnvelope(t, conn)

	src.push(&common.MessageGpsRawInt{Lat: 473977420, Lon: 85455940}, 1)
	src.push(&common.MessageAttitude{Roll: 0.5}, 1)

	if env := readEnvelope(t, conn); env.Type != "ATTITUDE" {
		t.Fatalf("got %q, ignored type leaked through", env.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"GET_STATE"}`)); err != nil {
		t.Fatal(err)
	}
	env := readEnvelope(t, conn)
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &groups); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if _, ok := groups["gps"]; ok {
		t.Error("ignored message updated the state cache")
	}
	if _, ok := groups["attitude"]; !ok {
		t.Error("admitted message missing from state cache")
	}
}
