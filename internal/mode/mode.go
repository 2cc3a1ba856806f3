// Package mode defines the closed set of device interaction modes and the
// command vocabulary the intent resolver produces.
//
// Exactly one [Mode] is current at any instant. The controller owns the
// current mode; every other component only reads it or requests a change.
package mode

import "strings"

// Mode is a top-level device interaction state.
type Mode string

const (
	Idle             Mode = "idle"
	ActiveVision     Mode = "active_vision"
	Reading          Mode = "reading"
	CountCurrency    Mode = "count_currency"
	ResetLanguage    Mode = "reset_language"
	CurrentLocation  Mode = "current_location"
	Navigate         Mode = "navigate"
	BookmarkLocation Mode = "bookmark_location"
	SaveContact      Mode = "save_contact"
	GetContact       Mode = "get_contact"
	SendMoney        Mode = "send_money"
	Time             Mode = "time"
	Hotspots         Mode = "hotspots"
	Chat             Mode = "chat"
	Emergency        Mode = "emergency"
	DescribeScene    Mode = "describe_scene"
	GetDeviceID      Mode = "get_device_id"
	VolumeUp         Mode = "volume_up"
	VolumeDown       Mode = "volume_down"
	Shutdown         Mode = "shutdown"
)

var all = []Mode{
	Idle, ActiveVision, Reading, CountCurrency, ResetLanguage,
	CurrentLocation, Navigate, BookmarkLocation, SaveContact, GetContact,
	SendMoney, Time, Hotspots, Chat, Emergency,
	DescribeScene, GetDeviceID, VolumeUp, VolumeDown, Shutdown,
}

// All returns every valid mode in declaration order. The returned slice is a
// copy and may be modified by the caller.
func All() []Mode {
	out := make([]Mode, len(all))
	copy(out, all)
	return out
}

// IsValid reports whether m is one of the declared modes.
func (m Mode) IsValid() bool {
	for _, v := range all {
		if v == m {
			return true
		}
	}
	return false
}

// String implements [fmt.Stringer].
func (m Mode) String() string { return string(m) }

// Passive reports whether background narration should run while m is
// current. Idle and active vision manage the camera themselves; shutdown
// stops everything.
func (m Mode) Passive() bool {
	switch m {
	case Idle, ActiveVision, Shutdown:
		return false
	}
	return m.IsValid()
}

// Parse converts s into a [Mode]. Matching is case-insensitive and ignores
// surrounding whitespace. ok is false when s does not name a mode.
func Parse(s string) (m Mode, ok bool) {
	m = Mode(strings.ToLower(strings.TrimSpace(s)))
	return m, m.IsValid()
}
