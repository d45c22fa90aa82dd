// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/errors"
	log "github.com/spirit-labs/opi/logger"
	"github.com/spirit-labs/opi/metrics"
)

// MessageHandler handles one inbound message and returns the response to send. If it returns an error nothing is
// sent and the peer is closed.
type MessageHandler func(message []byte) ([]byte, error)

/*
Connection manages both channels of a terminal link.

Channel 0 (Request) is outbound: every request dials the remote address, sends one frame, waits for one frame back
and closes the socket.

Channel 1 (Bind/Serve) is inbound: peers are accepted one at a time, each sends one frame, gets one frame back and
is closed. A failure with one peer is logged and never stops the accept loop.
*/
type Connection struct {
	config   conf.ConnectionConfig
	lock     sync.Mutex
	listener net.Listener
	peer     net.Conn
	closed   bool
}

func NewConnection(config conf.ConnectionConfig) (*Connection, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Connection{config: config}, nil
}

func (c *Connection) Config() conf.ConnectionConfig {
	return c.config
}

// Request sends message to the remote address and returns the response payload. Connection failures are reported
// as ConnectionError, and a response that has not fully arrived within RoundTripTimeout of the send as Timeout.
func (c *Connection) Request(message []byte) ([]byte, error) {
	address := c.config.RemoteAddress()
	d := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := d.Dial("tcp", address)
	if err != nil {
		return nil, errors.NewConnectionError("failed to connect to %s: %v", address, err)
	}
	defer closeConn(conn)
	log.Debugf("[request OUT] %s %s", address, message)
	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return nil, convertNetworkError(err, "setting write deadline")
	}
	if err := SendFrame(conn, message); err != nil {
		return nil, err
	}
	metrics.FrameSent(metrics.Channel0)
	deadline := time.Now().Add(c.config.RoundTripTimeout)
	reply, err := RecvFrame(conn, deadline, c.config.MaxFrameSize)
	if err != nil {
		if errors.IsTimeout(err) {
			metrics.FrameTimeout(metrics.Channel0)
			log.Warnf("[TIMEOUT] no response from %s within %s", address, c.config.RoundTripTimeout)
		}
		return nil, err
	}
	metrics.FrameReceived(metrics.Channel0)
	log.Debugf("[request REPLY] %s %s", address, reply)
	return reply, nil
}

// Bind starts listening on the local address. Listen calls it when it has not been called already.
func (c *Connection) Bind() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return errors.NewConnectionError("connection is closed")
	}
	if c.listener != nil {
		return nil
	}
	address := c.config.LocalAddress()
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.NewConnectionError("failed to listen on %s: %v", address, err)
	}
	c.listener = listener
	log.Infof("listening for device requests on %s", listener.Addr().String())
	return nil
}

// Serve accepts and serves peers sequentially until Close is called, when it returns nil.
func (c *Connection) Serve(onMessage MessageHandler) error {
	c.lock.Lock()
	listener := c.listener
	c.lock.Unlock()
	if listener == nil {
		return errors.NewOpiError(errors.InvalidArgument, "Serve called before Bind")
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			if isTimeout(err) {
				log.Warnf("[listen ERROR] accept failed: %v", err)
				continue
			}
			return errors.WithStack(err)
		}
		if !c.setPeer(conn) {
			closeConn(conn)
			return nil
		}
		c.servePeer(conn, onMessage)
		c.setPeer(nil)
	}
}

// Listen is Bind followed by Serve.
func (c *Connection) Listen(onMessage MessageHandler) error {
	if err := c.Bind(); err != nil {
		return err
	}
	return c.Serve(onMessage)
}

func (c *Connection) servePeer(conn net.Conn, onMessage MessageHandler) {
	trace := uuid.NewString()
	remote := conn.RemoteAddr().String()
	defer closeConn(conn)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[listen ERROR] %s %s panic handling message: %v", trace, remote, r)
		}
	}()
	message, err := RecvFrame(conn, time.Now().Add(c.config.AcceptTimeout), c.config.MaxFrameSize)
	if err != nil {
		if errors.IsTimeout(err) {
			metrics.FrameTimeout(metrics.Channel1)
			log.Warnf("[TIMEOUT] %s %s no message within %s", trace, remote, c.config.AcceptTimeout)
		} else if !c.isClosed() {
			log.Warnf("[listen ERROR] %s %s %v", trace, remote, err)
		}
		return
	}
	metrics.FrameReceived(metrics.Channel1)
	log.Debugf("[listen IN] %s %s %s", trace, remote, message)
	response, err := onMessage(message)
	if err != nil {
		log.Warnf("[listen ERROR] %s %s failed to handle message: %v", trace, remote, err)
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		log.Warnf("[listen ERROR] %s %s %v", trace, remote, err)
		return
	}
	if err := SendFrame(conn, response); err != nil {
		log.Warnf("[listen ERROR] %s %s %v", trace, remote, err)
		return
	}
	metrics.FrameSent(metrics.Channel1)
	log.Debugf("[listen OUT] %s %s %s", trace, remote, response)
}

// setPeer records the peer being served so Close can interrupt it. It returns false if the connection has been
// closed in the meantime.
func (c *Connection) setPeer(conn net.Conn) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed && conn != nil {
		return false
	}
	c.peer = conn
	return true
}

func (c *Connection) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// LocalAddr is the bound listener address, or nil before Bind.
func (c *Connection) LocalAddr() net.Addr {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Close stops the listener and drops the peer currently being served, if any. Outbound requests are unaffected.
func (c *Connection) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.peer != nil {
		closeConn(c.peer)
	}
	if c.listener != nil {
		return c.listener.Close()
	}
	return nil
}

func closeConn(conn net.Conn) {
	if err := conn.Close(); err != nil {
		// Ignore
	}
}
