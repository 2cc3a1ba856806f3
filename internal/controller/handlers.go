package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/sightwear/sightwear/internal/frame"
	"github.com/sightwear/sightwear/internal/mode"
	"github.com/sightwear/sightwear/internal/peripheral"
	"github.com/sightwear/sightwear/internal/services"
	"github.com/sightwear/sightwear/internal/store"
	"github.com/sightwear/sightwear/internal/vision"
	"github.com/sightwear/sightwear/pkg/audio"
	"github.com/sightwear/sightwear/pkg/provider/describe"
	"github.com/sightwear/sightwear/pkg/provider/geo"
)

// Spoken by the mode handlers.
const (
	MsgNoFrame    = "No camera image is available."
	MsgReading    = "Reading text now."
	MsgDoneText   = "Done reading text."
	MsgNoText     = "No text found."
	MsgCounting   = "Counting currency"
	MsgTurningOff = "Turning off"
)

// TimeLayout renders the time mode announcement.
const TimeLayout = "Monday, January 02, 2006. The time is 03:04 PM."

func (c *Controller) table() map[mode.Mode]Handler {
	return map[mode.Mode]Handler{
		mode.Idle:             c.idle,
		mode.ActiveVision:     c.activeVision,
		mode.Reading:          c.reading,
		mode.CountCurrency:    c.countCurrency,
		mode.ResetLanguage:    c.resetLanguage,
		mode.CurrentLocation:  c.currentLocation,
		mode.Navigate:         c.navigate,
		mode.BookmarkLocation: c.bookmarkLocation,
		mode.SaveContact:      c.saveContact,
		mode.GetContact:       c.getContact,
		mode.SendMoney:        c.sendMoney,
		mode.Time:             c.tellTime,
		mode.Hotspots:         c.hotspots,
		mode.Chat:             c.chat,
		mode.Emergency:        c.emergency,
		mode.DescribeScene:    c.describeScene,
		mode.GetDeviceID:      c.deviceID,
		mode.VolumeUp:         c.volume(+1),
		mode.VolumeDown:       c.volume(-1),
		mode.Shutdown:         c.shutdown,
	}
}

func (c *Controller) idle(_ context.Context, t Tick) (*frame.Frame, mode.Mode) {
	return t.Frame, mode.Idle
}

func (c *Controller) activeVision(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	f := t.Frame
	if f == nil || c.deps.Vision == nil || f.Seq == c.lastVisionSeq {
		return c.hold(t), mode.ActiveVision
	}
	c.lastVisionSeq = f.Seq
	_, err := c.deps.Vision.Process(ctx, f, vision.Options{
		Language: t.Language,
		Volume:   1,
		Silent:   c.wake.Pending(),
		Path:     "active",
	})
	if err != nil {
		slog.Warn("active vision failed", "err", err)
	}
	return f, mode.ActiveVision
}

func (c *Controller) reading(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.frozen == nil {
		c.frozen = t.Frame
	}
	f := c.frozen
	if f == nil {
		c.announce(ctx, MsgNoFrame)
		return nil, mode.Idle
	}
	if c.deps.OCR == nil {
		c.unavailable(ctx, "Text reading")
		return f, mode.Idle
	}

	text, err := c.deps.OCR.Read(ctx, f.JPEG)
	if err != nil {
		c.providerFailed(ctx, "ocr", err)
	}
	if text = strings.TrimSpace(text); text != "" {
		c.announce(ctx, MsgReading)
		c.announce(ctx, text)
		c.announce(ctx, MsgDoneText)
		return f, mode.ActiveVision
	}

	c.readingMisses++
	c.announce(ctx, MsgNoText)
	if c.readingMisses >= c.cfg.ReadingAttempts {
		return f, mode.Idle
	}
	// Try again on a fresh frame.
	c.frozen = nil
	return f, mode.Reading
}

func (c *Controller) countCurrency(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	f := t.Frame
	if f == nil {
		c.announce(ctx, MsgNoFrame)
		return nil, mode.Idle
	}
	if c.deps.Currency == nil {
		c.unavailable(ctx, "Currency counting")
		return f, mode.Idle
	}
	c.announce(ctx, MsgCounting)
	res, err := c.deps.Currency.Count(ctx, f.JPEG)
	if err != nil {
		c.providerFailed(ctx, "currency", err)
		c.announce(ctx, "I could not count the currency.")
		return f, mode.ActiveVision
	}
	c.announce(ctx, res.Sentence())
	return f, mode.ActiveVision
}

func (c *Controller) resetLanguage(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	langs := c.deps.Languages
	if langs == nil {
		c.unavailable(ctx, "Language selection")
		return t.Frame, mode.Idle
	}
	answer := c.ask(ctx, "Which language would you like to use?", peripheral.ContextLanguage)
	lang, ok := langs.Match(answer)
	if !ok {
		slog.Info("language not recognised, using default", "answer", answer)
		lang = langs.Default()
	}
	c.dc.SetLanguage(lang.Code)
	if c.deps.Store != nil {
		err := store.UpdatePreferences(ctx, c.deps.Store, func(p *store.Preferences) { p.Language = lang.Code })
		if err != nil {
			slog.Warn("could not persist language", "language", lang.Code, "err", err)
		}
	}
	slog.Info("language changed", "language", lang.Code)
	c.announce(ctx, fmt.Sprintf("Language set to %s.", lang.Name))
	return t.Frame, mode.Idle
}

func (c *Controller) currentLocation(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.Geo == nil {
		c.unavailable(ctx, "Location")
		return t.Frame, mode.Idle
	}
	addr, err := c.deps.Geo.Reverse(ctx, c.position(ctx))
	if err != nil {
		c.providerFailed(ctx, "geo", err)
		c.announce(ctx, "I could not determine your location.")
		return t.Frame, mode.Idle
	}
	c.announce(ctx, "Your current location is "+strings.TrimSuffix(addr, ".")+".")
	return t.Frame, mode.Idle
}

var destinationPattern = regexp.MustCompile(`(?i)\b(?:go|take me|navigate|directions|way|get|walk)\s+to\s+(.+)$`)

// destinationIn extracts "the market" from "take me to the market".
func destinationIn(transcript string) string {
	m := destinationPattern.FindStringSubmatch(strings.TrimSpace(transcript))
	if m == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(m[1]), ".?!")
}

func (c *Controller) navigate(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	dest := destinationIn(t.Transcript)
	if dest == "" {
		dest = c.ask(ctx, "Where would you like to go?", peripheral.ContextVoice)
	}
	if dest == "" {
		c.announce(ctx, "No destination was heard.")
		return t.Frame, mode.Idle
	}
	name, target, err := c.findPlace(ctx, dest)
	if err != nil {
		slog.Info("destination not found", "destination", dest, "err", err)
		c.announce(ctx, fmt.Sprintf("Sorry, I could not find %s.", dest))
		return t.Frame, mode.Idle
	}
	c.announce(ctx, geo.DescribeRoute(name, c.position(ctx), target))
	return t.Frame, mode.Idle
}

// findPlace resolves a bookmark first and falls back to geocoding.
func (c *Controller) findPlace(ctx context.Context, query string) (string, geo.Position, error) {
	if c.deps.Store != nil {
		b, err := store.FindBookmark(ctx, c.deps.Store, query)
		if err == nil {
			return b.Name, geo.Position{Lat: b.Lat, Lng: b.Lng}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("bookmark lookup failed", "err", err)
		}
	}
	if c.deps.Geo == nil {
		return "", geo.Position{}, geo.ErrNotFound
	}
	p, err := c.deps.Geo.Geocode(ctx, query)
	if err != nil {
		return "", geo.Position{}, err
	}
	name := p.Name
	if name == "" {
		name = query
	}
	return name, p.Position, nil
}

func (c *Controller) bookmarkLocation(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.Store == nil {
		c.unavailable(ctx, "Bookmarks")
		return t.Frame, mode.Idle
	}
	name := store.NormaliseName(c.ask(ctx, "What would you like to call this place?", peripheral.ContextVoice))
	if name == "" {
		c.announce(ctx, "No name was heard.")
		return t.Frame, mode.Idle
	}
	pos := c.position(ctx)
	b := store.Bookmark{Name: name, Lat: pos.Lat, Lng: pos.Lng, CreatedAt: c.cfg.Now()}
	if err := c.deps.Store.SaveBookmark(ctx, b); err != nil {
		slog.Warn("bookmark not saved", "name", name, "err", err)
		c.announce(ctx, "The location could not be saved.")
		return t.Frame, mode.Idle
	}
	c.announce(ctx, fmt.Sprintf("Location saved as %s.", name))
	return t.Frame, mode.Idle
}

func (c *Controller) saveContact(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.Store == nil {
		c.unavailable(ctx, "Contacts")
		return t.Frame, mode.Idle
	}
	name := store.NormaliseName(c.ask(ctx, "What is the name of the contact?", peripheral.ContextVoice))
	if name == "" {
		c.announce(ctx, "No name was heard.")
		return t.Frame, mode.Idle
	}
	phone := digits(c.ask(ctx, "What is the phone number?", peripheral.ContextVoice))
	if phone == "" {
		c.announce(ctx, "No phone number was heard.")
		return t.Frame, mode.Idle
	}
	if err := c.deps.Store.SaveContact(ctx, store.Contact{Name: name, Phone: phone, CreatedAt: c.cfg.Now()}); err != nil {
		slog.Warn("contact not saved", "name", name, "err", err)
		c.announce(ctx, "The contact could not be saved.")
		return t.Frame, mode.Idle
	}
	c.announce(ctx, fmt.Sprintf("%s has been saved to your contacts.", name))
	return t.Frame, mode.Idle
}

func (c *Controller) getContact(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.Store == nil {
		c.unavailable(ctx, "Contacts")
		return t.Frame, mode.Idle
	}
	spoken := c.ask(ctx, "Whose number would you like?", peripheral.ContextVoice)
	if spoken == "" {
		c.announce(ctx, "No name was heard.")
		return t.Frame, mode.Idle
	}
	contact, err := store.FindContact(ctx, c.deps.Store, c.deps.Matcher, spoken)
	if err != nil {
		c.announce(ctx, fmt.Sprintf("Sorry, I couldn't find %s in your contacts.", spoken))
		return t.Frame, mode.Idle
	}
	c.announce(ctx, fmt.Sprintf("The number for %s is %s.", contact.Name, spell(contact.Phone)))
	return t.Frame, mode.Idle
}

func (c *Controller) sendMoney(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.Store == nil || c.deps.Guardian == nil {
		c.unavailable(ctx, "Mobile money")
		return t.Frame, mode.Idle
	}
	amount, ok := parseAmount(c.ask(ctx, "How much would you like to send?", peripheral.ContextVoice))
	if !ok {
		c.announce(ctx, "I did not get a valid amount.")
		return t.Frame, mode.Idle
	}
	spoken := c.ask(ctx, "Who would you like to send it to?", peripheral.ContextVoice)
	contact, err := store.FindContact(ctx, c.deps.Store, c.deps.Matcher, spoken)
	if err != nil {
		c.announce(ctx, fmt.Sprintf("Sorry, I couldn't find %s in your contacts.", spoken))
		return t.Frame, mode.Idle
	}
	question := fmt.Sprintf("Send %s cedis to %s? Say yes or no.", formatAmount(amount), contact.Name)
	if !affirmative(c.ask(ctx, question, peripheral.ContextVoice)) {
		c.announce(ctx, "Okay, the payment was cancelled.")
		return t.Frame, mode.Idle
	}

	tx := store.Transaction{
		ID:        uuid.NewString(),
		Recipient: contact.Name,
		Phone:     contact.Phone,
		Amount:    amount,
		Status:    store.StatusSent,
		CreatedAt: c.cfg.Now(),
	}
	sendErr := c.deps.Guardian.SendPayment(ctx, services.Payment{
		Reference:    tx.ID,
		Amount:       amount,
		PayeeName:    contact.Name,
		PayeeAccount: contact.Phone,
	})
	if sendErr != nil {
		tx.Status = store.StatusFailed
	}
	if err := c.deps.Store.RecordTransaction(ctx, tx); err != nil {
		slog.Warn("transaction not recorded", "id", tx.ID, "err", err)
	}
	if sendErr != nil {
		slog.Warn("payment failed", "id", tx.ID, "err", sendErr)
		c.announce(ctx, "The payment could not be sent.")
		return t.Frame, mode.Idle
	}
	c.announce(ctx, fmt.Sprintf("%s cedis sent to %s.", formatAmount(amount), contact.Name))
	return t.Frame, mode.Idle
}

func (c *Controller) tellTime(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	c.announce(ctx, c.cfg.Now().Format(TimeLayout))
	return t.Frame, mode.Idle
}

func (c *Controller) hotspots(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.Geo == nil {
		c.unavailable(ctx, "Nearby places")
		return t.Frame, mode.Idle
	}
	places, err := c.deps.Geo.Nearby(ctx, c.position(ctx), c.cfg.NearbyRadius)
	if err != nil {
		c.providerFailed(ctx, "geo", err)
		c.announce(ctx, "I could not search for nearby places.")
		return t.Frame, mode.Idle
	}
	names := make([]string, 0, c.cfg.MaxPlaces)
	for _, p := range places {
		if len(names) == c.cfg.MaxPlaces {
			break
		}
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		c.announce(ctx, "No places found nearby.")
		return t.Frame, mode.Idle
	}
	c.announce(ctx, "Places near you: "+joinList(names)+".")
	return t.Frame, mode.Idle
}

var chatExits = map[string]bool{"stop": true, "exit": true, "goodbye": true, "bye": true, "quit": true}

func (c *Controller) chat(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	if c.deps.LLM == nil {
		c.unavailable(ctx, "Chat")
		return t.Frame, mode.Idle
	}
	prompt := ""
	if c.conv.Len() == 0 {
		prompt = "What would you like to talk about?"
	}
	question := c.ask(ctx, prompt, peripheral.ContextVoice)
	if question == "" {
		c.announce(ctx, "Leaving chat.")
		return t.Frame, mode.Idle
	}
	if chatExits[strings.ToLower(strings.Trim(question, " .!?"))] {
		c.announce(ctx, "Goodbye.")
		return t.Frame, mode.Idle
	}
	answer, err := c.conv.Ask(ctx, c.deps.LLM, c.cfg.Chat, question)
	if err != nil {
		c.providerFailed(ctx, "llm", err)
		c.announce(ctx, "Sorry, I could not get an answer.")
		return t.Frame, mode.Chat
	}
	c.announce(ctx, describe.Clean(answer))
	return t.Frame, mode.Chat
}

func (c *Controller) emergency(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	c.dialog.Store(true)
	defer c.dialog.Store(false)

	clip, recorded := c.prompt(ctx, "Emergency mode activated. Please describe your emergency.", peripheral.ContextVoice)
	alert := services.EmergencyAlert{DeviceID: c.deviceIDOrEmpty(ctx), Message: "Emergency alert from device"}
	if recorded {
		if text := c.transcribe(ctx, clip, c.dc.Language()); text != "" {
			alert.Message = text
		}
		if wav, err := audio.EncodeWAV(clip); err == nil {
			alert.VoiceFile = base64.StdEncoding.EncodeToString(wav)
		} else {
			slog.Warn("emergency recording not encoded", "err", err)
		}
	}
	if pos := c.position(ctx); pos.Valid() {
		alert.Latitude, alert.Longitude = &pos.Lat, &pos.Lng
	}

	if c.deps.Guardian == nil {
		c.unavailable(ctx, "Emergency alerting")
		return t.Frame, mode.Idle
	}
	if err := c.deps.Guardian.SendEmergency(ctx, alert); err != nil {
		slog.Error("emergency alert failed", "err", err)
		c.announce(ctx, "The emergency alert could not be sent.")
		return t.Frame, mode.Idle
	}
	slog.Info("emergency alert sent", "recorded", recorded)
	c.announce(ctx, "Emergency alert sent. Help is on the way.")
	return t.Frame, mode.Idle
}

func (c *Controller) describeScene(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	f := t.Frame
	if f == nil {
		c.announce(ctx, MsgNoFrame)
		return nil, mode.Idle
	}
	if c.deps.Describer == nil {
		c.unavailable(ctx, "Scene description")
		return f, mode.Idle
	}
	c.announce(ctx, "Describing the scene.")
	text, err := c.deps.Describer.Describe(ctx, f.JPEG, describe.DefaultPrompt)
	if text = describe.Clean(text); err != nil || text == "" {
		if err != nil {
			c.providerFailed(ctx, "describe", err)
		}
		c.announce(ctx, "I could not describe the scene.")
		return f, mode.ActiveVision
	}
	c.announce(ctx, text)
	return f, mode.ActiveVision
}

func (c *Controller) deviceID(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	id := c.deviceIDOrEmpty(ctx)
	if id == "" {
		c.unavailable(ctx, "The device ID")
		return t.Frame, mode.Idle
	}
	c.announce(ctx, fmt.Sprintf("Your device ID is %s.", id))
	return t.Frame, mode.Idle
}

func (c *Controller) deviceIDOrEmpty(ctx context.Context) string {
	if c.cfg.DeviceID != "" || c.deps.Store == nil {
		return c.cfg.DeviceID
	}
	id, err := store.EnsureDeviceID(ctx, c.deps.Store)
	if err != nil {
		slog.Warn("device id unavailable", "err", err)
		return ""
	}
	c.cfg.DeviceID = id
	return id
}

func (c *Controller) volume(direction float64) Handler {
	return func(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
		if c.deps.Volume == nil {
			c.unavailable(ctx, "Volume control")
			return t.Frame, mode.Idle
		}
		g := c.deps.Volume.SetMaster(c.deps.Volume.Master() + direction*c.cfg.VolumeStep)
		slog.Info("volume changed", "gain", g)
		c.announce(ctx, fmt.Sprintf("Volume %d percent.", int(math.Round(g*100))))
		return t.Frame, mode.Idle
	}
}

func (c *Controller) shutdown(ctx context.Context, t Tick) (*frame.Frame, mode.Mode) {
	c.announce(ctx, MsgTurningOff)
	return t.Frame, mode.Shutdown
}

// position returns the device position, or the configured fallback.
func (c *Controller) position(ctx context.Context) geo.Position {
	if c.deps.Geo != nil {
		p, err := c.deps.Geo.Locate(ctx)
		if err == nil && p.Valid() {
			return p
		}
		if err != nil {
			c.providerFailed(ctx, "geo", err)
		}
	}
	return c.cfg.FallbackPosition
}

var spokenDigits = map[string]byte{
	"zero": '0', "oh": '0', "o": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
}

// digits extracts a phone number from a transcript, accepting numerals and
// spoken digits.
func digits(s string) string {
	var b strings.Builder
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if d, ok := spokenDigits[w]; ok {
			b.WriteByte(d)
			continue
		}
		for _, r := range w {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// spell separates digits so they are read one by one.
func spell(number string) string {
	return strings.Join(strings.Split(number, ""), " ")
}

var amountPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parseAmount returns the first positive number in s.
func parseAmount(s string) (float64, bool) {
	m := amountPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// joinList renders "a", "a and b" or "a, b, and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}
