package wakeword

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sightwear/sightwear/internal/observe"
	"github.com/sightwear/sightwear/pkg/audio"
)

// WakeLine is written to a streaming client when its audio triggers.
const WakeLine = "WAKEWORD\n"

// ServerConfig tunes a [Server]. Zero values take defaults.
type ServerConfig struct {
	// ListenAddr. Default: ":1234".
	ListenAddr string

	// Buffer is the ring length per stream. Default: 5s.
	Buffer time.Duration

	Detector Config
	Metrics  *observe.Metrics
}

// Server accepts raw microphone streams (little-endian int16 mono PCM) and
// runs one receiver and one detector per connection.
type Server struct {
	cfg    ServerConfig
	clf    Classifier
	onWake func()

	ln net.Listener
	wg sync.WaitGroup

	mu        sync.Mutex
	detectors map[*Detector]struct{}
	threshold float64
}

// NewServer returns an unstarted server. onWake runs on every trigger from
// any stream.
func NewServer(cfg ServerConfig, clf Classifier, onWake func()) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":1234"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 5 * time.Second
	}
	cfg.Detector.defaults()
	if cfg.Buffer < cfg.Detector.Window {
		cfg.Buffer = cfg.Detector.Window
	}
	return &Server{
		cfg:       cfg,
		clf:       clf,
		onWake:    onWake,
		detectors: make(map[*Detector]struct{}),
		threshold: cfg.Detector.Threshold,
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("wakeword: listen %s: %w", s.cfg.ListenAddr, err)
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

// SetThreshold changes the trigger threshold of live and future streams.
func (s *Server) SetThreshold(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = t
	for d := range s.detectors {
		d.SetThreshold(t)
	}
}

// Run accepts streams until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	slog.Info("wake word server listening", "addr", s.ln.Addr().String())

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
			slog.Warn("wake word accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	slog.Info("wake word stream connected", "addr", addr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.mu.Lock()
	cfg := s.cfg.Detector
	cfg.Threshold = s.threshold
	ring := NewRing(Samples(s.cfg.Buffer, cfg.SampleRate))
	det := NewDetector(ring, s.clf, cfg)
	s.detectors[det] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.detectors, det)
		s.mu.Unlock()
	}()

	var wmu sync.Mutex
	detDone := make(chan struct{})
	go func() {
		defer close(detDone)
		det.Run(ctx, func() {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordWake(ctx, "detector")
			}
			wmu.Lock()
			_, err := io.WriteString(conn, WakeLine)
			wmu.Unlock()
			if err != nil {
				slog.Warn("wake word client write failed", "addr", addr, "err", err)
				cancel()
			}
			if s.onWake != nil {
				s.onWake()
			}
		})
	}()

	s.receive(conn, ring)
	cancel()
	<-detDone
	slog.Info("wake word stream disconnected", "addr", addr)
}

// receive copies PCM from conn into ring until the stream ends. A sample
// split across reads is carried over.
func (s *Server) receive(conn net.Conn, ring *Ring) {
	buf := make([]byte, 4097)
	carried := false
	for {
		off := 0
		if carried {
			off = 1
		}
		n, err := conn.Read(buf[off:])
		if n > 0 {
			data := buf[:off+n]
			carried = len(data)%2 == 1
			ring.Write(audio.Int16ToFloat32(audio.BytesToInt16(data)))
			if carried {
				buf[0] = data[len(data)-1]
			}
		}
		if err != nil {
			return
		}
	}
}
