package ws

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/orchestrator"
	"savegrid.ai/internal/sim/tuning"
	"savegrid.ai/schemas"
)

const (
	RoleObserver = "observer"
	RoleOperator = "operator"
)

// Controller is the slice of orchestrator.Controller the socket needs.
type Controller interface {
	View() (*orchestrator.View, error)
	ApplyOverride(o ledger.Override) error
}

type Server struct {
	hub  *Hub
	ctrl Controller
	ref  protocol.ScenarioRef
	log  *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(hub *Hub, ctrl Controller, sc tuning.Scenario, seed uint64, logger *log.Logger) *Server {
	b, _ := json.Marshal(sc)
	sum := sha256.Sum256(b)
	return &Server{
		hub:  hub,
		ctrl: ctrl,
		ref: protocol.ScenarioRef{
			Name:       sc.Name,
			Digest:     hex.EncodeToString(sum[:]),
			Hospitals:  len(sc.Hospitals),
			Ambulances: len(sc.Ambulances),
			Seed:       seed,
		},
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
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

		c := s.handshake(conn, isLoopbackRemote(r.RemoteAddr))
		if c == nil {
			return
		}
		s.hub.add(c)
		defer s.hub.remove(c.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: operators may send POLICY; everything else is ignored.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypePolicy {
				continue
			}
			ack := s.handlePolicy(c, msg)
			b, _ := json.Marshal(ack)
			select {
			case c.out <- b:
			case <-ctx.Done():
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn, loopback bool) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return nil
	}
	if err := validate("hello.schema.json", msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if !supports(hello) {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil
	}
	role := hello.Role
	if role == "" {
		role = RoleObserver
	}
	if role == RoleOperator && !loopback {
		closeWith(conn, websocket.ClosePolicyViolation, "operator role requires loopback")
		return nil
	}

	c := &client{
		id:   fmt.Sprintf("C%d", s.nextID.Add(1)),
		role: role,
		out:  make(chan []byte, 64),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        c.id,
		Scenario:        s.ref,
		Capabilities:    protocol.ServerCapsObs{Policy: role == RoleOperator, Alerts: true},
	}
	if v, err := s.ctrl.View(); err == nil {
		welcome.SessionID = v.SessionID
		welcome.Tick = v.Tick
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	if s.log != nil {
		s.log.Printf("ws client %s connected (%s, %s)", c.id, hello.ClientName, role)
	}
	return c
}

func supports(h protocol.HelloMsg) bool {
	if h.ProtocolVersion == protocol.Version {
		return true
	}
	for _, v := range h.SupportedVersions {
		if v == protocol.Version {
			return true
		}
	}
	return false
}

func (s *Server) handlePolicy(c *client, raw []byte) protocol.AckMsg {
	var tick uint64
	if v, err := s.ctrl.View(); err == nil {
		tick = v.Tick
	}
	m, err := protocol.DecodePolicy(raw)
	if err != nil {
		return protocol.Ack(reqIDOf(raw), tick, protocol.ErrProtoBadRequest, err.Error())
	}
	if c.role != RoleOperator {
		return protocol.Ack(m.ReqID, tick, protocol.ErrBadRequest, "observers cannot send POLICY")
	}
	if err := s.ctrl.ApplyOverride(orchestrator.OverrideFrom(m)); err != nil {
		code := protocol.ErrBadRequest
		if errors.Is(err, orchestrator.ErrNotStarted) {
			code = protocol.ErrSessionBusy
		}
		return protocol.Ack(m.ReqID, tick, code, err.Error())
	}
	if s.log != nil {
		s.log.Printf("ws client %s policy override %s queued", c.id, m.ReqID)
	}
	return protocol.Ack(m.ReqID, tick, "", "applies at next tick")
}

func reqIDOf(raw []byte) string {
	var v struct {
		ReqID string `json:"req_id"`
	}
	_ = json.Unmarshal(raw, &v)
	return v.ReqID
}

func validate(schema string, raw []byte) error {
	sch, err := schemas.Compile(schema)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return sch.Validate(doc)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
