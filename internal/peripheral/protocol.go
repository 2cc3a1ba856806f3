package peripheral

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	"github.com/sightwear/sightwear/internal/mode"
)

// Control lines accepted from a sensor unit.
const (
	CmdGetMode        = "GET_MODE"
	CmdModeVoice      = "MODE_VOICE"
	CmdModeOCR        = "MODE_OCR"
	CmdModeObject     = "MODE_OBJECT"
	CmdModeStop       = "MODE_STOP"
	CmdModeLanguage   = "MODE_LANGUAGE"
	CmdRecordType     = "RECORD_TYPE"
	CmdBeginRecording = "BEGIN_RECORDING"
	CmdAudioStart     = "AUDIO_START"
	CmdAudioEnd       = "AUDIO_END"
)

// Lines sent to sensor units.
const (
	MsgModeUpdate      = "MODE_UPDATE"
	MsgCurrentMode     = "CURRENT_MODE"
	MsgVoicePromptDone = "VOICE_PROMPT_DONE"
)

// Recording contexts a sensor unit can tag an audio stream with.
const (
	ContextVoice    = "voice"
	ContextLanguage = "language"
)

// ErrPayloadTooLarge is returned when a framed audio stream exceeds the
// configured bound. The oversized stream is discarded up to its sentinel.
var ErrPayloadTooLarge = errors.New("peripheral: audio payload too large")

var audioEnd = []byte(CmdAudioEnd)

// modeCommands maps direct mode switch commands onto modes.
var modeCommands = map[string]mode.Mode{
	CmdModeOCR:      mode.Reading,
	CmdModeObject:   mode.ActiveVision,
	CmdModeStop:     mode.Idle,
	CmdModeLanguage: mode.ResetLanguage,
}

// command is one parsed control line.
type command struct {
	name string
	arg  string
}

// parseLine normalises a control line. Names are upper-cased; the argument
// after the first colon is lower-cased. ok is false for blank lines.
func parseLine(line string) (c command, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line, ":")
	return command{
		name: strings.ToUpper(strings.TrimSpace(name)),
		arg:  strings.ToLower(strings.TrimSpace(arg)),
	}, true
}

// readFramed reads raw bytes up to and excluding the AUDIO_END sentinel. At
// most limit payload bytes are kept; past that the rest of the stream is
// consumed and [ErrPayloadTooLarge] is returned once the sentinel arrives.
func readFramed(r *bufio.Reader, limit int) ([]byte, error) {
	buf := make([]byte, 0, 64<<10)
	overflow := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if bytes.HasSuffix(buf, audioEnd) {
			if overflow {
				return nil, ErrPayloadTooLarge
			}
			return buf[:len(buf)-len(audioEnd)], nil
		}
		if !overflow && len(buf) > limit+len(audioEnd) {
			overflow = true
		}
		if overflow && len(buf) >= len(audioEnd) {
			// Keep only enough tail to recognise the sentinel.
			n := copy(buf, buf[len(buf)-len(audioEnd)+1:])
			buf = buf[:n]
		}
	}
}

// trimAudioStart drops a leading AUDIO_START control line from raw.
func trimAudioStart(raw []byte) []byte {
	for _, prefix := range []string{CmdAudioStart + "\r\n", CmdAudioStart + "\n"} {
		if rest, ok := bytes.CutPrefix(raw, []byte(prefix)); ok {
			return rest
		}
	}
	return raw
}
