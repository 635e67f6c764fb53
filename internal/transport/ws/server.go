package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"railnav/internal/input"
	"railnav/internal/protocol"
	"railnav/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	outQueue         = 8
)

type Server struct {
	world *world.World
	log   *zap.SugaredLogger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *zap.SugaredLogger) *Server {
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
			s.log.Debugw("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		defer conn.Close()

		riderID, out := s.handshake(conn)
		if riderID == "" {
			return
		}
		log := s.log.With("rider", riderID)
		log.Infow("ws connected", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine; the only writer once the handshake is done.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			held, code, reason := decodeInput(msg)
			if code != "" {
				enqueue(out, protocol.NewError(code, reason))
				continue
			}
			select {
			case s.world.Inbox() <- world.InputEnvelope{RiderID: riderID, Held: held}:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.world.Leave() <- world.LeaveRequest{RiderID: riderID, Out: out}
		log.Infow("ws disconnected")
	}
}

// decodeInput returns the held set of an INPUT message, or an error code and reason.
func decodeInput(msg []byte) (input.Command, string, string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return input.None, protocol.ErrProtoBadRequest, "invalid json"
	}
	if base.Type != protocol.TypeInput {
		return input.None, protocol.ErrProtoBadRequest, "unexpected message type " + base.Type
	}
	var in protocol.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return input.None, protocol.ErrProtoBadRequest, "invalid INPUT"
	}
	if in.ProtocolVersion != protocol.Version {
		return input.None, protocol.ErrProtoVersion, "bad protocol_version"
	}
	held, err := input.ParseCommands(in.Held)
	if err != nil {
		return input.None, protocol.ErrBadRequest, err.Error()
	}
	return held, "", ""
}

func (s *Server) handshake(conn *websocket.Conn) (riderID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(conn, protocol.NewError(protocol.ErrProtoBadRequest, "expected HELLO"))
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(conn, protocol.NewError(protocol.ErrProtoBadRequest, "invalid HELLO"))
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		reject(conn, protocol.NewError(protocol.ErrProtoVersion, "bad protocol_version"))
		return "", nil
	}

	out = make(chan []byte, outQueue)

	// Optional: resume an existing rider (reconnect).
	var resp world.JoinResponse
	if token := strings.TrimSpace(hello.ResumeToken); token != "" {
		respCh := make(chan world.JoinResponse, 1)
		s.world.Attach() <- world.AttachRequest{ResumeToken: token, Out: out, Resp: respCh}
		resp = <-respCh
	}
	if resp.Welcome.RiderID == "" {
		// Fresh join.
		respCh := make(chan world.JoinResponse, 1)
		s.world.Join() <- world.JoinRequest{Name: hello.RiderName, Vehicle: hello.Vehicle, Out: out, Resp: respCh}
		resp = <-respCh
	}
	if resp.Error != nil {
		reject(conn, *resp.Error)
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.RiderID, out
}

func reject(conn *websocket.Conn, e protocol.ErrorMsg) {
	_ = writeJSON(conn, e)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, e.Code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// enqueue hands a message to the writer goroutine without blocking the reader.
func enqueue(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}
