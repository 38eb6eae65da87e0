package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillsphere/meetings/internal/api/http/converter"
	"github.com/skillsphere/meetings/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Client talks to the meeting server over its HTTP API and signaling socket.
type Client struct {
	server string
	token  string
	userID string
	name   string
	http   *http.Client
}

func NewClient(server, token, userID, name string) *Client {
	return &Client{
		server: strings.TrimRight(server, "/"),
		token:  token,
		userID: userID,
		name:   name,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type CreateRoomRequest struct {
	Name            string               `json:"name"`
	Password        string               `json:"password,omitempty"`
	Capacity        int                  `json:"capacity,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Settings        *domain.RoomSettings `json:"settings,omitempty"`
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*converter.RoomResponse, error) {
	var out struct {
		Room converter.RoomResponse `json:"room"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/rooms", req, &out); err != nil {
		return nil, err
	}
	return &out.Room, nil
}

func (c *Client) GetRoom(ctx context.Context, code string) (*converter.RoomResponse, error) {
	var out struct {
		Room converter.RoomResponse `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out.Room, nil
}

func (c *Client) Participants(ctx context.Context, code string) ([]domain.Participant, error) {
	var out struct {
		Participants []domain.Participant `json:"participants"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(code)+"/participants", nil, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

func (c *Client) Recordings(ctx context.Context) ([]converter.RecordingResponse, error) {
	var out struct {
		Recordings []converter.RecordingResponse `json:"recordings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/recordings", nil, &out); err != nil {
		return nil, err
	}
	return out.Recordings, nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
		return
	}
	h.Set("X-User-ID", c.userID)
	if c.name != "" {
		h.Set("X-User-Name", c.name)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Error == "" {
			failure.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: failure.Code, Message: failure.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Session is an open signaling connection.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Client) Dial(ctx context.Context) (*Session, error) {
	u, err := url.Parse(c.server + "/api/ws")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	c.authorize(header)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Session{conn: conn}, nil
}

func (s *Session) Send(eventType, target string, payload any) error {
	msg := domain.NewEvent(eventType, "", payload)
	msg.TargetID = target

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// Receive blocks for the next event. Only one goroutine may call it.
func (s *Session) Receive() (domain.SignalMessage, error) {
	var msg domain.SignalMessage
	err := s.conn.ReadJSON(&msg)
	return msg, err
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.mu.Unlock()
	return s.conn.Close()
}
