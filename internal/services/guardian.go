package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/sightwear/sightwear/internal/resilience"
)

// ErrOffline is returned when an operation needs a live link.
var ErrOffline = errors.New("services: guardian link offline")

// GuardianConfig configures a [Guardian].
type GuardianConfig struct {
	// APIURL is the HTTP root for tokens and the alert fallback.
	APIURL string

	// SocketURL is the websocket endpoint.
	SocketURL string

	DeviceID string

	// StatusInterval paces heartbeats. Default: 5s.
	StatusInterval time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Battery reports the charge percentage. Nil omits it.
	Battery func() int

	// Mode reports the current device mode for heartbeats. Optional.
	Mode func() string

	HTTPClient *http.Client
}

// Guardian maintains the websocket link to the guardian backend and
// reconnects with capped exponential backoff until its context ends.
type Guardian struct {
	cfg      GuardianConfig
	messages chan Message

	mu   sync.Mutex
	conn *websocket.Conn

	online atomic.Bool
}

// NewGuardian returns an unconnected link. Call [Guardian.Run] to connect.
func NewGuardian(cfg GuardianConfig) *Guardian {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Guardian{cfg: cfg, messages: make(chan Message, 16)}
}

// Messages delivers guardian messages in arrival order. When the controller
// falls behind by more than the buffer, the oldest messages are dropped.
func (g *Guardian) Messages() <-chan Message { return g.messages }

// Online reports whether the link is up.
func (g *Guardian) Online() bool { return g.online.Load() }

// Run keeps the link up until ctx is done. It always returns nil.
func (g *Guardian) Run(ctx context.Context) error {
	b := resilience.NewBackoff(g.cfg.BackoffInitial, g.cfg.BackoffMax)
	for {
		connected, err := g.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}
		slog.Warn("guardian link down, reconnecting", "err", err)
		if b.Wait(ctx) != nil {
			return nil
		}
	}
}

// session runs one connection to completion. connected reports whether the
// dial succeeded.
func (g *Guardian) session(ctx context.Context) (connected bool, err error) {
	token, err := g.FetchToken(ctx)
	if err != nil {
		return false, err
	}
	u, err := url.Parse(g.cfg.SocketURL)
	if err != nil {
		return false, fmt.Errorf("services: socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return false, fmt.Errorf("services: dial: %w", err)
	}
	defer conn.CloseNow()

	g.setConn(conn)
	defer g.setConn(nil)
	slog.Info("guardian link connected", "device_id", g.cfg.DeviceID)

	if err := g.emit(ctx, EventJoin, []string{g.cfg.DeviceID}); err != nil {
		return true, err
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.heartbeat(sctx)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("services: read: %w", err)
		}
		g.handle(raw)
	}
}

func (g *Guardian) setConn(c *websocket.Conn) {
	g.mu.Lock()
	g.conn = c
	g.mu.Unlock()
	g.online.Store(c != nil)
}

func (g *Guardian) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		st := Status{DeviceID: g.cfg.DeviceID, Status: "active", IsOnline: true}
		if g.cfg.Battery != nil {
			lvl := g.cfg.Battery()
			st.BatteryLevel = &lvl
		}
		if g.cfg.Mode != nil {
			st.Mode = g.cfg.Mode()
		}
		if err := g.emit(ctx, EventStatus, st); err != nil && ctx.Err() == nil {
			slog.Debug("device status not sent", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (g *Guardian) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("guardian sent malformed message", "err", err)
		return
	}
	switch env.Event {
	case EventNewMessage:
		var m Message
		if err := json.Unmarshal(env.Data, &m); err != nil || strings.TrimSpace(m.Content) == "" {
			slog.Warn("guardian sent an unreadable message", "err", err)
			return
		}
		g.enqueue(m)
	case EventEmergency:
		slog.Info("emergency alert echoed by guardian", "data", string(env.Data))
	case EventLocation:
		slog.Debug("location update", "data", string(env.Data))
	default:
		slog.Debug("guardian event ignored", "event", env.Event)
	}
}

func (g *Guardian) enqueue(m Message) {
	for {
		select {
		case g.messages <- m:
			return
		default:
		}
		select {
		case dropped := <-g.messages:
			slog.Warn("guardian message dropped, queue full", "content", dropped.Content)
		default:
		}
	}
}

// emit sends one event over the live connection.
func (g *Guardian) emit(ctx context.Context, event string, data any) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return ErrOffline
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("services: encode %s: %w", event, err)
	}
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("services: encode %s: %w", event, err)
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("services: send %s: %w", event, err)
	}
	return nil
}

// FetchToken exchanges the device id for a short-lived link token.
func (g *Guardian) FetchToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := g.post(ctx, "/devices/token", map[string]string{"deviceId": g.cfg.DeviceID}, &out); err != nil {
		return "", fmt.Errorf("services: fetch token: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("services: fetch token: empty token")
	}
	return out.Token, nil
}

// SendEmergency raises an alert over the link, falling back to HTTP when the
// link is down.
func (g *Guardian) SendEmergency(ctx context.Context, a EmergencyAlert) error {
	if a.DeviceID == "" {
		a.DeviceID = g.cfg.DeviceID
	}
	if a.AlertType == "" {
		a.AlertType = "manual"
	}
	if a.Severity == "" {
		a.Severity = "high"
	}
	err := g.emit(ctx, EventEmergency, a)
	if err == nil {
		return nil
	}
	slog.Warn("emergency alert not sent over link, using HTTP", "err", err)
	if herr := g.post(ctx, "/alerts", a, nil); herr != nil {
		return fmt.Errorf("services: emergency alert: %w", errors.Join(err, herr))
	}
	return nil
}

// SendPayment requests a money transfer. It needs a live link.
func (g *Guardian) SendPayment(ctx context.Context, p Payment) error {
	return g.emit(ctx, EventSendMoney, p)
}

// SendReply answers a guardian message.
func (g *Guardian) SendReply(ctx context.Context, content string) error {
	return g.emit(ctx, EventReply, Reply{Content: content, From: "device"})
}

func (g *Guardian) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
