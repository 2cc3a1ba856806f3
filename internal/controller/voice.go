package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/sightwear/sightwear/internal/capture"
	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/peripheral"
	"github.com/sightwear/sightwear/internal/speech"
	"github.com/sightwear/sightwear/pkg/audio"
)

// Spoken prompts of the voice flow.
const (
	PromptGreeting   = "Hello, how may I help you?"
	PromptRepeat     = "Sorry, please say that again."
	MsgNotUnderstood = "Sorry, I could not understand you."

	PromptReply     = "Do you want to reply? Say yes or no."
	PromptReplyText = "Please say your reply."
	MsgReplySent    = "Your reply has been sent."
	MsgReplyFailed  = "Your reply could not be sent."
	MsgNoReply      = "No reply was detected."
	MsgReplySkipped = "Okay, no reply sent."
)

// voiceCommand runs the wake, prompt, capture and classify flow. The loop
// is blocked until it finishes; every step is bounded by a timeout.
func (c *Controller) voiceCommand(ctx context.Context, source string) {
	c.dialog.Store(true)
	defer c.dialog.Store(false)

	slog.Info("voice command started", "source", source)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordWake(ctx, source)
	}

	text := c.ask(ctx, PromptGreeting, peripheral.ContextVoice)
	for attempt := 2; text == "" && attempt <= c.cfg.VoiceAttempts && ctx.Err() == nil; attempt++ {
		slog.Debug("empty voice command, retrying", "attempt", attempt)
		text = c.ask(ctx, PromptRepeat, peripheral.ContextVoice)
	}
	if text == "" {
		c.announce(ctx, MsgNotUnderstood)
		return
	}
	c.command(ctx, text, source)
}

// unsolicited treats a voice upload nobody asked for as a command.
func (c *Controller) unsolicited(ctx context.Context, p peripheral.Payload) {
	c.dialog.Store(true)
	defer c.dialog.Store(false)

	text := c.transcribe(ctx, p.Clip, c.dc.Language())
	if text == "" {
		slog.Debug("unsolicited voice upload had no speech", "from", p.From)
		return
	}
	c.command(ctx, text, "peripheral")
}

// command classifies text and commits the mode it asks for.
func (c *Controller) command(ctx context.Context, text, source string) {
	if c.deps.Resolver == nil {
		slog.Warn("no intent resolver, ignoring command", "text", text)
		return
	}
	in := c.deps.Resolver.Resolve(ctx, text)
	m, ok := mode.ModeFor(in.Label)
	if !ok {
		slog.Info("no command recognised", "text", text, "label", in.Label)
		return
	}
	slog.Info("voice command", "text", text, "label", in.Label, "confidence", in.Confidence, "mode", m)
	if mode.Confirmable(m) {
		c.announce(ctx, title(m)+" mode activated.")
	}
	c.transcript = text
	c.commit(ctx, m, source)
}

// relayMessage reads out one pending guardian message and offers a reply.
// The current mode is left untouched.
func (c *Controller) relayMessage(ctx context.Context) {
	if c.deps.Guardian == nil {
		return
	}
	var content string
	select {
	case msg := <-c.deps.Guardian.Messages():
		content = strings.TrimSpace(msg.Content)
	default:
		return
	}
	if content == "" {
		return
	}

	c.dialog.Store(true)
	defer c.dialog.Store(false)

	c.announce(ctx, "New message: "+content)
	if !affirmative(c.ask(ctx, PromptReply, peripheral.ContextVoice)) {
		c.announce(ctx, MsgReplySkipped)
		return
	}
	reply := c.ask(ctx, PromptReplyText, peripheral.ContextVoice)
	if reply == "" {
		c.announce(ctx, MsgNoReply)
		return
	}
	if err := c.deps.Guardian.SendReply(ctx, reply); err != nil {
		slog.Warn("guardian reply failed", "err", err)
		c.announce(ctx, MsgReplyFailed)
		return
	}
	c.announce(ctx, MsgReplySent)
}

// ask speaks prompt, tells the sensor units to record and returns the
// transcript of the answer. An empty prompt skips straight to recording.
func (c *Controller) ask(ctx context.Context, prompt, purpose string) string {
	clip, ok := c.prompt(ctx, prompt, purpose)
	if !ok {
		return ""
	}
	language := c.dc.Language()
	if purpose == peripheral.ContextLanguage {
		language = speech.Source
	}
	return c.transcribe(ctx, clip, language)
}

// prompt is ask without the transcription.
func (c *Controller) prompt(ctx context.Context, prompt, purpose string) (audio.Clip, bool) {
	if c.deps.Recorder != nil {
		c.deps.Recorder.Forget(purpose)
	}
	if prompt != "" {
		c.announce(ctx, prompt)
	}
	if c.deps.Link != nil {
		c.deps.Link.PromptDone()
	}
	return c.record(ctx, purpose)
}

func (c *Controller) record(ctx context.Context, purpose string) (audio.Clip, bool) {
	if c.deps.Recorder == nil {
		slog.Warn("no audio source configured")
		return audio.Clip{}, false
	}
	clip, err := c.deps.Recorder.Capture(ctx, purpose, c.cfg.ListenTimeout)
	switch {
	case errors.Is(err, capture.ErrNothingCaptured):
		slog.Debug("nothing captured", "purpose", purpose)
		return audio.Clip{}, false
	case err != nil:
		slog.Warn("audio capture failed", "purpose", purpose, "err", err)
		return audio.Clip{}, false
	}
	return clip, !clip.Empty()
}

func (c *Controller) transcribe(ctx context.Context, clip audio.Clip, language string) string {
	if c.deps.Transcriber == nil {
		slog.Warn("no transcriber configured")
		return ""
	}
	text, err := c.deps.Transcriber.Transcribe(ctx, clip, language)
	if err != nil {
		c.providerFailed(ctx, "stt", err)
		return ""
	}
	return strings.TrimSpace(text)
}

var yesWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true,
	"okay": true, "ok": true, "confirm": true, "correct": true, "send": true,
}

// affirmative reports whether an answer to a yes or no question is a yes.
func affirmative(answer string) bool {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if w == "no" || w == "not" || w == "nope" || w == "cancel" {
			return false
		}
	}
	for _, w := range words {
		if yesWords[w] {
			return true
		}
	}
	return false
}

// title renders a mode for speech, e.g. "Count currency".
func title(m mode.Mode) string {
	s := strings.ReplaceAll(m.String(), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
