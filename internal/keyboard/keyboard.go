// Package keyboard maps single key presses on the device console to mode
// changes and voice wakes.
package keyboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/sightwear/sightwear/internal/mode"
)

// VoiceAction is the map value that starts a voice interaction.
const VoiceAction = "voice"

// Source labels keyboard-originated requests in logs and metrics.
const Source = "keyboard"

// Action is what one key does: either a mode change or a wake.
type Action struct {
	Mode  mode.Mode
	Voice bool
}

// Map binds keys to actions.
type Map map[rune]Action

// ParseMap builds a [Map] from configuration, where every key is a single
// character and every value a mode name or "voice". All problems are
// reported together.
func ParseMap(keys map[string]string) (Map, error) {
	m := make(Map, len(keys))
	var errs []error
	for k, v := range keys {
		r, size := utf8.DecodeRuneInString(k)
		if size == 0 || size != len(k) {
			errs = append(errs, fmt.Errorf("keyboard: key %q must be a single character", k))
			continue
		}
		if strings.EqualFold(strings.TrimSpace(v), VoiceAction) {
			m[r] = Action{Voice: true}
			continue
		}
		md, ok := mode.Parse(v)
		if !ok {
			errs = append(errs, fmt.Errorf("keyboard: key %q: unknown mode %q", k, v))
			continue
		}
		m[r] = Action{Mode: md}
	}
	return m, errors.Join(errs...)
}

// Handler receives key actions. The controller implements it.
type Handler interface {
	SetMode(m mode.Mode, source string)
	Wake(source string)
}

// Reader turns key presses into handler calls.
type Reader struct {
	in   io.Reader
	keys Map
	h    Handler
}

// NewReader reads keys from in.
func NewReader(in io.Reader, keys Map, h Handler) *Reader {
	return &Reader{in: in, keys: keys, h: h}
}

// Run dispatches keys until ctx is done or the input ends. Losing the input
// only disables the keyboard, so read failures are logged and Run returns nil.
func (r *Reader) Run(ctx context.Context) error {
	runes := make(chan rune)
	errc := make(chan error, 1)
	go func() {
		br := bufio.NewReader(r.in)
		for {
			c, _, err := br.ReadRune()
			if err != nil {
				errc <- err
				return
			}
			select {
			case runes <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if !errors.Is(err, io.EOF) {
				slog.Warn("keyboard input lost", "err", err)
			}
			return nil
		case c := <-runes:
			r.dispatch(c)
		}
	}
}

// Press applies the action bound to c, if any.
func (r *Reader) Press(c rune) bool { return r.dispatch(c) }

func (r *Reader) dispatch(c rune) bool {
	a, ok := r.keys[c]
	if !ok {
		return false
	}
	slog.Debug("key pressed", "key", string(c), "mode", a.Mode, "voice", a.Voice)
	if a.Voice {
		r.h.Wake(Source)
	} else {
		r.h.SetMode(a.Mode, Source)
	}
	return true
}

// RawStdin puts the terminal on stdin into raw mode so that keys arrive
// without Enter. restore must be called before exit. When stdin is not a
// terminal, it is returned unchanged.
func RawStdin() (in io.Reader, restore func(), err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return os.Stdin, func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("keyboard: raw mode: %w", err)
	}
	return os.Stdin, func() { _ = term.Restore(fd, old) }, nil
}
