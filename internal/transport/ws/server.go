package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gladekeep.gg/internal/protocol"
	"gladekeep.gg/internal/sim/world"
)

// Server bridges WebSocket sessions to the world loop: HELLO/WELCOME
// handshake, then MOVE and TUNE inbound, STATE outbound once per tick.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(msg, out)
		}

		// Cleanup.
		s.world.Leave() <- sessionID
	}
}

func (s *Server) route(msg []byte, out chan []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reject(out, protocol.ErrProtoBadRequest, "malformed JSON")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.reject(out, protocol.ErrProtoVersion, "unsupported protocol version")
		return
	}

	switch base.Type {
	case protocol.TypeMove:
		var m protocol.MoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.reject(out, protocol.ErrProtoBadRequest, "malformed MOVE")
			return
		}
		s.world.Move() <- world.Vec2{X: m.Pos[0], Z: m.Pos[1]}
	case protocol.TypeTune:
		var m protocol.TuneMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.reject(out, protocol.ErrProtoBadRequest, "malformed TUNE")
			return
		}
		if !protocol.KnownTuneField(m.Field) {
			s.reject(out, protocol.ErrUnknownField, "unknown tune field: "+m.Field)
			return
		}
		s.world.Tune() <- world.TuneRequest{Field: m.Field, Delta: m.Delta}
	default:
		// Ignore unknown types; future-compatible.
	}
}

func (s *Server) reject(out chan []byte, code, msg string) {
	b, err := json.Marshal(protocol.NewError(code, msg))
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unsupported protocol version"),
			time.Now().Add(time.Second))
		return "", nil
	}

	out = make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{Name: hello.ClientName, Out: out, Resp: resp}

	select {
	case jr := <-resp:
		b, err := json.Marshal(jr.Welcome)
		if err != nil {
			return "", nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			s.world.Leave() <- jr.SessionID
			return "", nil
		}
		if s.log != nil {
			s.log.Printf("session %s joined (%s)", jr.SessionID, hello.ClientName)
		}
		return jr.SessionID, out
	case <-time.After(5 * time.Second):
		return "", nil
	}
}
