package router

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hiveswarm/hive/pkg/wire"
)

// Conn is the Drone-side half of the socket: one outbound connection to a
// Hive Endpoint, announcing identity at connect time and exchanging
// opaque payloads afterward.
type Conn struct {
	ws       *websocket.Conn
	identity string
}

// Dial connects to a Hive Endpoint bound at addr and announces identity as
// the first message on the connection.
func Dial(addr, identity string) (*Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("router: dial %s: %w", addr, err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(identity)); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("router: announce identity: %w", err)
	}
	return &Conn{ws: ws, identity: identity}, nil
}

// Send writes one payload to the Hive endpoint.
func (c *Conn) Send(payload []byte) error {
	packed := packMultipart(wire.EncodeMultipart(c.identity, payload))
	return c.ws.WriteMessage(websocket.BinaryMessage, packed)
}

// Recv blocks until one payload arrives from the Hive endpoint.
func (c *Conn) Recv() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	parts, err := unpackMultipart(data)
	if err != nil {
		return nil, err
	}
	_, payload, err := wire.DecodeMultipart(parts)
	return payload, err
}

// SetReadDeadline forwards to the underlying connection, so a caller can
// keep Recv from blocking forever on a stalled Hive endpoint. The Drone
// does not set one.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
