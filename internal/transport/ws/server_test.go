package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gladekeep.gg/internal/protocol"
	"gladekeep.gg/internal/sim/world"
)

type nopLoader struct{}

func (nopLoader) Load(c world.ChunkCoord) (world.ContentHandle, error) { return c, nil }
func (nopLoader) Unload(world.ContentHandle) error                     { return nil }

func startTestServer(t *testing.T) (url string) {
	t.Helper()
	w, err := world.New(world.Config{
		ID:         "ws_test",
		TickRateHz: 100,
		ChunkSize:  128,
		Streaming:  world.StreamingConfig{ActiveRadius: 1, Hysteresis: 1, LoadCapPerFrame: 4, UnloadCapPerFrame: 4},
		Mins:       world.StreamingMins{ActiveRadius: 1, LoadCapPerFrame: 1, UnloadCapPerFrame: 1},
	}, nopLoader{}, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)

	srv := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialAndHello(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test"}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read WELCOME: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("bad WELCOME: %+v", welcome)
	}
	return conn
}

// readUntilType skips interleaved STATE broadcasts until a message of the
// wanted type arrives.
func readUntilType(t *testing.T, conn *websocket.Conn, wantType string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			continue
		}
		if base.Type == wantType {
			return b
		}
	}
	t.Fatalf("no %s message within deadline", wantType)
	return nil
}

func TestServer_handshakeAndStateStream(t *testing.T) {
	url := startTestServer(t)
	conn := dialAndHello(t, url)

	b := readUntilType(t, conn, protocol.TypeState)
	var st protocol.StateMsg
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("bad STATE: %v", err)
	}
	if st.Streaming.ActiveRadius != 1 {
		t.Fatalf("STATE streaming config: %+v", st.Streaming)
	}
}

func TestServer_tuneRoundTrip(t *testing.T) {
	url := startTestServer(t)
	conn := dialAndHello(t, url)

	tune := protocol.TuneMsg{
		Type: protocol.TypeTune, ProtocolVersion: protocol.Version,
		Field: protocol.FieldActiveRadius, Delta: +1,
	}
	if err := conn.WriteJSON(tune); err != nil {
		t.Fatalf("write TUNE: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b := readUntilType(t, conn, protocol.TypeState)
		var st protocol.StateMsg
		if err := json.Unmarshal(b, &st); err != nil {
			t.Fatalf("bad STATE: %v", err)
		}
		if st.Streaming.ActiveRadius == 2 {
			return
		}
	}
	t.Fatalf("TUNE never reflected in STATE")
}

func TestServer_rejectsUnknownTuneField(t *testing.T) {
	url := startTestServer(t)
	conn := dialAndHello(t, url)

	tune := protocol.TuneMsg{
		Type: protocol.TypeTune, ProtocolVersion: protocol.Version,
		Field: "chunk_size", Delta: 1,
	}
	if err := conn.WriteJSON(tune); err != nil {
		t.Fatalf("write TUNE: %v", err)
	}

	b := readUntilType(t, conn, protocol.TypeError)
	var em protocol.ErrorMsg
	if err := json.Unmarshal(b, &em); err != nil {
		t.Fatalf("bad ERROR: %v", err)
	}
	if em.Code != protocol.ErrUnknownField {
		t.Fatalf("error code = %q, want %q", em.Code, protocol.ErrUnknownField)
	}
}

func TestServer_rejectsWrongVersion(t *testing.T) {
	url := startTestServer(t)
	conn := dialAndHello(t, url)

	move := protocol.MoveMsg{Type: protocol.TypeMove, ProtocolVersion: "0.0", Pos: [2]float64{1, 1}}
	if err := conn.WriteJSON(move); err != nil {
		t.Fatalf("write MOVE: %v", err)
	}

	b := readUntilType(t, conn, protocol.TypeError)
	var em protocol.ErrorMsg
	if err := json.Unmarshal(b, &em); err != nil {
		t.Fatalf("bad ERROR: %v", err)
	}
	if em.Code != protocol.ErrProtoVersion {
		t.Fatalf("error code = %q, want %q", em.Code, protocol.ErrProtoVersion)
	}
}

func TestServer_moveShiftsObserver(t *testing.T) {
	url := startTestServer(t)
	conn := dialAndHello(t, url)

	move := protocol.MoveMsg{Type: protocol.TypeMove, ProtocolVersion: protocol.Version, Pos: [2]float64{10 * 128, 0}}
	if err := conn.WriteJSON(move); err != nil {
		t.Fatalf("write MOVE: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b := readUntilType(t, conn, protocol.TypeState)
		var st protocol.StateMsg
		if err := json.Unmarshal(b, &st); err != nil {
			t.Fatalf("bad STATE: %v", err)
		}
		if st.ObserverChunk == [2]int{10, 0} {
			return
		}
	}
	t.Fatalf("MOVE never reflected in STATE")
}
