// Package `client` wraps client connections and keeps track of authenticated sessions.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lambdcalculus/dmbn/internal/uid"
	"github.com/lambdcalculus/dmbn/pkg/codec"
	"github.com/lambdcalculus/dmbn/pkg/frame"
	"github.com/lambdcalculus/dmbn/pkg/logger"
)

// How long a single write may block before the connection is considered broken.
const writeTimeout = 10 * time.Second

var ErrClosed = errors.New("client: connection closed")

// Represents a client's connection and identity. A client connects either over
// raw TCP, where payloads are length-prefixed frames, or over WebSocket, where
// each binary message is one payload.
type Client struct {
	// Guards writes, so replies and broadcasts don't interleave.
	writeMu sync.Mutex

	// connection data
	wsConn    *websocket.Conn
	tcpConn   net.Conn
	tcpReader *bufio.Reader
	tcpWriter *bufio.Writer
	addr      string
	ipid      string
	maxFrame  int

	// identification data
	mu    sync.Mutex
	id    int
	login string

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}

	logger *logger.Logger
}

// Makes a new client over a TCP (or TLS) connection. Frames larger than
// `maxFrame` bytes are refused.
func NewTCPClient(conn net.Conn, maxFrame int, log *logger.Logger) *Client {
	c := &Client{
		tcpConn:   conn,
		tcpReader: bufio.NewReader(conn),
		tcpWriter: bufio.NewWriter(conn),
		addr:      conn.RemoteAddr().String(),
		ipid:      hashIP(conn.RemoteAddr()),
		maxFrame:  maxFrame,
		id:        uid.None,
		closed:    make(chan struct{}),
	}
	c.logger = log.With(fmt.Sprintf("[%v]", c.ipid))
	return c
}

// Makes a new client over a WebSocket connection.
func NewWSClient(conn *websocket.Conn, maxFrame int, log *logger.Logger) *Client {
	if maxFrame > 0 {
		conn.SetReadLimit(int64(maxFrame))
	}
	c := &Client{
		wsConn:   conn,
		addr:     conn.RemoteAddr().String(),
		ipid:     hashIP(conn.RemoteAddr()),
		maxFrame: maxFrame,
		id:       uid.None,
		closed:   make(chan struct{}),
	}
	c.logger = log.With(fmt.Sprintf("[%v]", c.ipid))
	return c
}

// Returns whether the client is connected via WebSocket.
func (c *Client) IsWS() bool {
	return c.wsConn != nil
}

// Waits for the next payload from the client. A clean disconnect is reported
// as [frame.ErrConnectionClosed].
func (c *Client) ReadFrame() ([]byte, error) {
	if c.IsWS() {
		_, b, err := c.wsConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, frame.ErrConnectionClosed
			}
			return nil, fmt.Errorf("client: WS read failed (%w).", err)
		}
		return b, nil
	}
	return frame.Read(c.tcpReader, c.maxFrame)
}

// Writes one payload to the client. A failed write leaves the stream in an
// unknown state, so the connection is closed.
func (c *Client) WriteFrame(payload []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var err error
	if c.IsWS() {
		c.wsConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = c.wsConn.WriteMessage(websocket.BinaryMessage, payload)
	} else {
		c.tcpConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = frame.Write(c.tcpWriter, payload)
	}
	if err != nil {
		c.logger.Debugf("Write to %v failed, closing (%v).", c.addr, err)
		c.Close()
		return err
	}
	return nil
}

// Encodes `v` and writes it to the client.
func (c *Client) Send(v any) error {
	b, err := codec.Encode(v)
	if err != nil {
		return err
	}
	if err := c.WriteFrame(b); err != nil {
		return err
	}
	c.logger.Tracef("Sent to %v: %#v", c.addr, v)
	return nil
}

// Sets a deadline for reads. The zero time removes it.
func (c *Client) SetReadDeadline(t time.Time) error {
	if c.IsWS() {
		return c.wsConn.SetReadDeadline(t)
	}
	return c.tcpConn.SetReadDeadline(t)
}

// Disconnects the client. Safe to call more than once; later calls return the
// result of the first one.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.tcpConn != nil {
			c.logger.Debugf("%v disconnected (TCP).", c.addr)
			c.closeErr = c.tcpConn.Close()
		}
		if c.wsConn != nil {
			c.logger.Debugf("%v disconnected (WS).", c.addr)
			c.closeErr = c.wsConn.Close()
		}
	})
	return c.closeErr
}

// Returns a channel that is closed once the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}
