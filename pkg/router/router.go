// Package router implements the full-duplex, identity-addressed message
// socket Hive uses to talk to many Drones over one listener. Each inbound
// frame is delivered together with the peer identity that sent it; an
// outbound send specifies the identity and the payload and is written
// synchronously to that peer's connection. The transport is a gorilla/websocket upgrade
// per Drone connection — chosen because it gives message framing and
// full-duplex I/O for free while keeping Endpoint's bind/poll/send
// contract transport-agnostic to its callers.
package router

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hiveswarm/hive/pkg/wire"
)

// Frame is one inbound message paired with the peer identity that sent it.
type Frame struct {
	Identity string
	Payload  []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Endpoint is the coordinator-side router: bind once, poll for inbound
// frames, send outbound frames by peer identity.
type Endpoint struct {
	log      zerolog.Logger
	server   *http.Server
	incoming chan Frame

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// New constructs an unbound Endpoint.
func New(logger zerolog.Logger) *Endpoint {
	return &Endpoint{
		log:      logger,
		incoming: make(chan Frame, 256),
		conns:    make(map[string]*websocket.Conn),
	}
}

// Bind starts accepting Drone connections on addr. Bind returns once the
// listener is up; serving continues in the background until Close.
func (e *Endpoint) Bind(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleUpgrade)
	e.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("router: bind %s: %w", addr, err)
	}
	go func() {
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.log.Error().Err(err).Msg("router endpoint serve failed")
		}
	}()
	return nil
}

func (e *Endpoint) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	_, identityBytes, err := conn.ReadMessage()
	if err != nil {
		e.log.Warn().Err(err).Msg("peer disconnected before sending identity")
		_ = conn.Close()
		return
	}
	identity := string(identityBytes)

	e.mu.Lock()
	e.conns[identity] = conn
	e.mu.Unlock()

	e.log.Debug().Str("worker_id", identity).Msg("peer connected")
	e.readLoop(identity, conn)
}

func (e *Endpoint) readLoop(identity string, conn *websocket.Conn) {
	defer func() {
		e.mu.Lock()
		delete(e.conns, identity)
		e.mu.Unlock()
		_ = conn.Close()
		e.log.Debug().Str("worker_id", identity).Msg("peer disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		parts, err := unpackMultipart(data)
		if err != nil {
			e.log.Warn().Err(err).Str("worker_id", identity).Msg("dropping malformed multipart frame")
			continue
		}
		_, payload, err := wire.DecodeMultipart(parts)
		if err != nil {
			e.log.Warn().Err(err).Str("worker_id", identity).Msg("dropping malformed multipart frame")
			continue
		}
		select {
		case e.incoming <- Frame{Identity: identity, Payload: payload}:
		default:
			e.log.Warn().Str("worker_id", identity).Msg("inbound queue full, dropping frame")
		}
	}
}

// Poll waits up to timeout for at least one inbound frame, then drains any
// others immediately available without blocking further.
func (e *Endpoint) Poll(ctx context.Context, timeout time.Duration) ([]Frame, error) {
	var frames []Frame
	select {
	case f := <-e.incoming:
		frames = append(frames, f)
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for {
		select {
		case f := <-e.incoming:
			frames = append(frames, f)
		default:
			return frames, nil
		}
	}
}

// Send delivers payload to the named peer identity. An unknown peer fails
// immediately; for a known peer the write is synchronous, so a slow peer
// blocks the caller until the write completes or fails.
func (e *Endpoint) Send(identity string, payload []byte) error {
	e.mu.Lock()
	conn, ok := e.conns[identity]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("router: unknown peer %q", identity)
	}
	packed := packMultipart(wire.EncodeMultipart(identity, payload))
	if err := conn.WriteMessage(websocket.BinaryMessage, packed); err != nil {
		return fmt.Errorf("router: send to %q: %w", identity, err)
	}
	return nil
}

// Close shuts down the listener and every open peer connection.
func (e *Endpoint) Close(ctx context.Context) error {
	e.mu.Lock()
	for id, conn := range e.conns {
		_ = conn.Close()
		delete(e.conns, id)
	}
	e.mu.Unlock()
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
