package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sightwear/sightwear/internal/services"
)

// backend is a fake guardian server. Every event the device sends is pushed
// to events; alerts posted over HTTP go to alerts.
type backend struct {
	t      *testing.T
	srv    *httptest.Server
	events chan services.Envelope
	alerts chan services.EmergencyAlert
	conns  chan *websocket.Conn

	mu      sync.Mutex
	tokens  int
	noToken bool
	auth    string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		t:      t,
		events: make(chan services.Envelope, 64),
		alerts: make(chan services.EmergencyAlert, 4),
		conns:  make(chan *websocket.Conn, 4),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /devices/token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DeviceID string `json:"deviceId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.tokens++
		fail := b.noToken
		b.mu.Unlock()
		if fail || req.DeviceID == "" {
			http.Error(w, "unknown device", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + req.DeviceID})
	})
	mux.HandleFunc("POST /alerts", func(w http.ResponseWriter, r *http.Request) {
		var a services.EmergencyAlert
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.alerts <- a
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.auth = r.Header.Get("Authorization")
		b.mu.Unlock()
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		b.conns <- conn
		for {
			_, raw, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var env services.Envelope
			if json.Unmarshal(raw, &env) == nil {
				b.events <- env
			}
		}
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) config() services.GuardianConfig {
	return services.GuardianConfig{
		APIURL:         b.srv.URL,
		SocketURL:      "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws",
		DeviceID:       "dev-1",
		StatusInterval: 20 * time.Millisecond,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     20 * time.Millisecond,
		Battery:        func() int { return 90 },
	}
}

func (b *backend) next(event string) services.Envelope {
	b.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env := <-b.events:
			if env.Event == event {
				return env
			}
		case <-timeout:
			b.t.Fatalf("no %s event within 3s", event)
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, _ := json.Marshal(data)
	raw, _ := json.Marshal(services.Envelope{Event: event, Data: payload})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func startGuardian(t *testing.T, cfg services.GuardianConfig) *services.Guardian {
	t.Helper()
	g := services.NewGuardian(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return g
}

func TestGuardian_JoinAndHeartbeat(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	startGuardian(t, b.config())

	join := b.next(services.EventJoin)
	var rooms []string
	if err := json.Unmarshal(join.Data, &rooms); err != nil || len(rooms) != 1 || rooms[0] != "dev-1" {
		t.Errorf("join rooms = %v, %v", rooms, err)
	}

	var st services.Status
	for range 2 {
		if err := json.Unmarshal(b.next(services.EventStatus).Data, &st); err != nil {
			t.Fatal(err)
		}
	}
	if st.DeviceID != "dev-1" || !st.IsOnline || st.BatteryLevel == nil || *st.BatteryLevel != 90 {
		t.Errorf("status = %+v", st)
	}

	b.mu.Lock()
	auth := b.auth
	b.mu.Unlock()
	if auth != "Bearer tok-dev-1" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestGuardian_MessagesAndReplies(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	g := startGuardian(t, b.config())

	conn := <-b.conns
	b.next(services.EventJoin)

	send(t, conn, services.EventNewMessage, services.Message{Content: "Where are you?"})
	send(t, conn, services.EventNewMessage, services.Message{Content: "  "})
	send(t, conn, "unknown_event", nil)

	select {
	case m := <-g.Messages():
		if m.Content != "Where are you?" {
			t.Errorf("message = %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no message delivered")
	}

	if err := g.SendReply(context.Background(), "At the market"); err != nil {
		t.Fatal(err)
	}
	var r services.Reply
	_ = json.Unmarshal(b.next(services.EventReply).Data, &r)
	if r.Content != "At the market" || r.From != "device" {
		t.Errorf("reply = %+v", r)
	}

	if err := g.SendPayment(context.Background(), services.Payment{Reference: "ref", Amount: 20, PayeeName: "Ama", PayeeAccount: "0209876543"}); err != nil {
		t.Fatal(err)
	}
	var p services.Payment
	_ = json.Unmarshal(b.next(services.EventSendMoney).Data, &p)
	if p.Amount != 20 || p.PayeeAccount != "0209876543" {
		t.Errorf("payment = %+v", p)
	}

	select {
	case m := <-g.Messages():
		t.Errorf("blank message delivered: %+v", m)
	default:
	}
}

func TestGuardian_EmergencyOverLink(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	g := startGuardian(t, b.config())
	b.next(services.EventJoin)

	lat, lng := 5.6, -0.18
	if err := g.SendEmergency(context.Background(), services.EmergencyAlert{Latitude: &lat, Longitude: &lng, VoiceFile: "UklGRg=="}); err != nil {
		t.Fatal(err)
	}
	var a services.EmergencyAlert
	_ = json.Unmarshal(b.next(services.EventEmergency).Data, &a)
	if a.DeviceID != "dev-1" || a.Severity != "high" || a.Latitude == nil || *a.Latitude != 5.6 || a.VoiceFile != "UklGRg==" {
		t.Errorf("alert = %+v", a)
	}
}

func TestGuardian_EmergencyFallsBackToHTTP(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	g := services.NewGuardian(b.config())

	if g.Online() {
		t.Fatal("Online before Run")
	}
	if err := g.SendEmergency(context.Background(), services.EmergencyAlert{Message: "help"}); err != nil {
		t.Fatalf("SendEmergency offline: %v", err)
	}
	select {
	case a := <-b.alerts:
		if a.Message != "help" || a.DeviceID != "dev-1" {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no HTTP alert")
	}

	if err := g.SendPayment(context.Background(), services.Payment{Amount: 1}); err != services.ErrOffline {
		t.Errorf("SendPayment offline err = %v, want ErrOffline", err)
	}
}

func TestGuardian_RetriesTokenFailures(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	b.noToken = true
	startGuardian(t, b.config())

	deadline := time.Now().Add(3 * time.Second)
	for {
		b.mu.Lock()
		n := b.tokens
		if n >= 3 {
			b.noToken = false
		}
		b.mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d token attempts", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.next(services.EventJoin)
}

func TestGuardian_ReconnectsAfterDrop(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	g := startGuardian(t, b.config())

	first := <-b.conns
	b.next(services.EventJoin)
	first.Close(websocket.StatusGoingAway, "restart")

	second := <-b.conns
	b.next(services.EventJoin)
	send(t, second, services.EventNewMessage, services.Message{Content: "back"})
	select {
	case m := <-g.Messages():
		if m.Content != "back" {
			t.Errorf("message = %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no message after reconnect")
	}
}
