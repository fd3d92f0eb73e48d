// Package client is the participant side of the signaling protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling client closed")

// Client manages the HTTP session and the WebSocket connection to the relay.
type Client struct {
	base *url.URL
	http *http.Client
	conn *websocket.Conn

	incoming chan protocol.Message
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
	// dead is closed once either pump has stopped.
	dead     chan struct{}
	deadOnce sync.Once
}

// NewClient creates a client for a server base URL such as http://localhost:8080.
func NewClient(serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:     u,
		http:     &http.Client{Jar: jar, Timeout: 10 * time.Second},
		incoming: make(chan protocol.Message, 32),
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
		dead:     make(chan struct{}),
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// SignIn establishes the session identity used when joining rooms.
func (c *Client) SignIn(ctx context.Context, username string) (domain.Identity, error) {
	body, _ := json.Marshal(map[string]string{"username": username})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/session", nil), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var resp struct {
		Username domain.Identity `json:"username"`
		Error    string          `json:"error"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	return resp.Username, nil
}

// CheckRoom reports whether a room is live or has history.
func (c *Client) CheckRoom(ctx context.Context, room domain.RoomID) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/check-room", url.Values{"roomId": {string(room)}}), nil)
	if err != nil {
		return false, err
	}
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(req, &resp); err != nil {
		return false, fmt.Errorf("check room: %w", err)
	}
	return resp.Exists, nil
}

// History fetches a room's stored messages, oldest first.
func (c *Client) History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/messages/"+string(room), nil), nil)
	if err != nil {
		return nil, err
	}
	var msgs []domain.ChatMessage
	if err := c.do(req, &msgs); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return msgs, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Connect dials the signaling socket carrying the session cookie.
func (c *Client) Connect(ctx context.Context) error {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"

	dialer := websocket.Dialer{
		Jar:              c.http.Jar,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.markDead()
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad message from relay")
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markDead()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes what is already queued, such as a final leave.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send queues a message for the relay. It fails with ErrClosed once the
// client was closed or the connection dropped.
func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	case <-c.dead:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.dead:
		return ErrClosed
	}
}

func (c *Client) markDead() {
	c.deadOnce.Do(func() { close(c.dead) })
}

func (c *Client) SendOffer(target domain.Handle, sdp string) error {
	return c.Send(protocol.Offer{Target: target, SDP: sdp})
}

func (c *Client) SendAnswer(target domain.Handle, sdp string) error {
	return c.Send(protocol.Answer{Target: target, SDP: sdp})
}

func (c *Client) SendCandidate(target domain.Handle, cand protocol.Candidate) error {
	return c.Send(protocol.ICECandidate{Target: target, Candidate: cand})
}

// Incoming is closed when the connection drops.
func (c *Client) Incoming() <-chan protocol.Message {
	return c.incoming
}

// Close closes the WebSocket connection after flushing queued messages.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
