// Package peripheral implements the link to remote sensor units: a TCP server
// speaking a newline-delimited ASCII control protocol with sentinel-framed
// binary audio streams.
//
// Each connection is served on its own goroutine. The registry of live
// connections is guarded by one mutex; broadcasts snapshot it and write
// outside the lock, dropping any connection whose write fails.
package peripheral

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/pkg/audio"
)

// Handler receives the controller-facing effects of control lines.
type Handler interface {
	// Mode returns the current mode for GET_MODE.
	Mode() mode.Mode

	// SetMode commits m on behalf of a sensor unit.
	SetMode(m mode.Mode, source string)

	// Wake starts a voice command interaction.
	Wake(source string)
}

// Config tunes a [Server]. Zero values take defaults.
type Config struct {
	// ListenAddr. Default: ":5678".
	ListenAddr string

	// MaxPayloadBytes bounds one audio stream. Default: 2 MiB.
	MaxPayloadBytes int

	// SampleRate of received audio. Default: 16000.
	SampleRate int

	// WriteTimeout bounds one write to a client. Default: 2s.
	WriteTimeout time.Duration

	Metrics *observe.Metrics
}

// Server is the sensor unit link.
type Server struct {
	cfg     Config
	handler Handler
	mailbox *Mailbox

	ln net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}

	wg sync.WaitGroup
}

type client struct {
	conn net.Conn
	addr string

	wmu sync.Mutex

	// recordCtx is only touched by the connection's own goroutine.
	recordCtx string
}

// New returns an unstarted server dispatching to h.
func New(cfg Config, h Handler) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5678"
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 2 << 20
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	return &Server{
		cfg:     cfg,
		handler: h,
		mailbox: &Mailbox{},
		clients: make(map[*client]struct{}),
	}
}

// Mailbox returns the store of received audio streams.
func (s *Server) Mailbox() *Mailbox { return s.mailbox }

// Listen binds the listening socket. It is called by [Server.Run] when
// needed; calling it first lets tests learn the bound address.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("peripheral: listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	return nil
}

// Close releases the socket bound by Listen on a server that will not run.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or nil before [Server.Listen].
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run accepts connections until ctx is cancelled, then closes every client
// and waits for their goroutines.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	slog.Info("peripheral link listening", "addr", s.ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("peripheral accept failed", "err", err)
			continue
		}
		c := &client{conn: conn, addr: conn.RemoteAddr().String()}
		s.add(c)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, c)
		}()
	}

	for _, c := range s.snapshot() {
		c.conn.Close()
	}
	s.wg.Wait()
	return nil
}

// Connected returns the number of live connections.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast announces m to every client as MODE_UPDATE:<mode>.
func (s *Server) Broadcast(m mode.Mode) int {
	return s.Send(MsgModeUpdate + ":" + m.String())
}

// PromptDone tells every client the voice prompt finished playing.
func (s *Server) PromptDone() int {
	return s.Send(MsgVoicePromptDone)
}

// Send writes line to every client and returns how many received it.
// Clients whose write fails are disconnected.
func (s *Server) Send(line string) int {
	delivered := 0
	for _, c := range s.snapshot() {
		if err := s.write(c, line); err != nil {
			slog.Warn("peripheral send failed, dropping client", "addr", c.addr, "err", err)
			s.remove(c)
			continue
		}
		delivered++
	}
	slog.Debug("peripheral broadcast", "line", line, "clients", delivered)
	return delivered
}

func (s *Server) write(c *client, line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("peripheral: set write deadline: %w", err)
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (s *Server) add(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	slog.Info("peripheral connected", "addr", c.addr)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.PeripheralClients.Add(context.Background(), 1)
	}
}

// remove unregisters and closes c. It is safe to call more than once.
func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.conn.Close()
	slog.Info("peripheral disconnected", "addr", c.addr)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.PeripheralClients.Add(context.Background(), -1)
	}
}

func (s *Server) snapshot() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) serve(ctx context.Context, c *client) {
	defer s.remove(c)
	r := bufio.NewReader(c.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("peripheral read failed", "addr", c.addr, "err", err)
			}
			return
		}
		cmd, ok := parseLine(line)
		if !ok {
			continue
		}
		if err := s.dispatch(ctx, c, r, cmd); err != nil {
			slog.Debug("peripheral stream ended", "addr", c.addr, "err", err)
			return
		}
	}
}

// dispatch handles one control line. Only read errors on the underlying
// connection are returned; protocol problems are logged and ignored.
func (s *Server) dispatch(ctx context.Context, c *client, r *bufio.Reader, cmd command) error {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.PeripheralCommands.Add(ctx, 1, metric.WithAttributes(observe.Attr("command", cmd.name)))
	}
	slog.Debug("peripheral command", "addr", c.addr, "command", cmd.name, "arg", cmd.arg)

	switch cmd.name {
	case CmdGetMode:
		if err := s.write(c, MsgCurrentMode+":"+s.handler.Mode().String()); err != nil {
			slog.Warn("peripheral reply failed", "addr", c.addr, "err", err)
		}

	case CmdModeVoice:
		s.handler.Wake("peripheral")

	case CmdModeOCR, CmdModeObject, CmdModeStop, CmdModeLanguage:
		s.handler.SetMode(modeCommands[cmd.name], "peripheral")

	case CmdRecordType:
		if cmd.arg == "" {
			slog.Warn("peripheral RECORD_TYPE without context", "addr", c.addr)
			return nil
		}
		c.recordCtx = cmd.arg

	case CmdBeginRecording:
		return s.receiveAudio(c, r, true)

	case CmdAudioStart:
		return s.receiveAudio(c, r, false)

	case CmdAudioEnd:
		slog.Warn("peripheral AUDIO_END without AUDIO_START", "addr", c.addr)

	default:
		slog.Warn("peripheral unknown command", "addr", c.addr, "command", cmd.name)
	}
	return nil
}

// receiveAudio reads one framed stream. A stream opened by BEGIN_RECORDING
// may still carry its own AUDIO_START line, which is not part of the PCM.
func (s *Server) receiveAudio(c *client, r *bufio.Reader, announced bool) error {
	ctxName := c.recordCtx
	if ctxName == "" {
		ctxName = ContextVoice
	}
	c.recordCtx = ""

	raw, err := readFramed(r, s.cfg.MaxPayloadBytes)
	if errors.Is(err, ErrPayloadTooLarge) {
		slog.Warn("peripheral audio discarded", "addr", c.addr, "context", ctxName, "limit", s.cfg.MaxPayloadBytes)
		return nil
	}
	if err != nil {
		return err
	}
	if announced {
		raw = trimAudioStart(raw)
	}

	clip := audio.ClipFromBytes(raw, s.cfg.SampleRate)
	slog.Info("peripheral audio received", "addr", c.addr, "context", ctxName, "duration", clip.Duration())
	s.mailbox.Deliver(Payload{Context: ctxName, Clip: clip, From: c.addr, At: time.Now()})
	return nil
}
