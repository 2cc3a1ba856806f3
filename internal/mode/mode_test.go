package mode_test

import (
	"testing"

	"github.com/sightwear/sightwear/internal/mode"
)

func TestAll_HasTwentyDistinctModes(t *testing.T) {
	t.Parallel()

	all := mode.All()
	if len(all) != 20 {
		t.Fatalf("len(All()) = %d, want 20", len(all))
	}
	seen := make(map[mode.Mode]bool, len(all))
	for _, m := range all {
		if seen[m] {
			t.Errorf("duplicate mode %q", m)
		}
		seen[m] = true
		if !m.IsValid() {
			t.Errorf("%q.IsValid() = false", m)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   mode.Mode
		wantOK bool
	}{
		{"reading", mode.Reading, true},
		{"  Active_Vision ", mode.ActiveVision, true},
		{"SHUTDOWN", mode.Shutdown, true},
		{"start", "start", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, ok := mode.Parse(tc.in)
			if ok != tc.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tc.in, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestModeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label  mode.Label
		want   mode.Mode
		wantOK bool
	}{
		{mode.LabelStart, mode.ActiveVision, true},
		{mode.LabelStop, mode.Idle, true},
		{mode.LabelCount, mode.CountCurrency, true},
		{mode.LabelReset, mode.ResetLanguage, true},
		{"send_money", mode.SendMoney, true},
		{"get_contact", mode.GetContact, true},
		{mode.LabelBackground, "", false},
		{"dance", "", false},
	}
	for _, tc := range tests {
		got, ok := mode.ModeFor(tc.label)
		if ok != tc.wantOK || (ok && got != tc.want) {
			t.Errorf("ModeFor(%q) = (%q, %v), want (%q, %v)", tc.label, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestPassive(t *testing.T) {
	t.Parallel()

	for _, m := range []mode.Mode{mode.Idle, mode.ActiveVision, mode.Shutdown, "bogus"} {
		if m.Passive() {
			t.Errorf("%q.Passive() = true, want false", m)
		}
	}
	for _, m := range []mode.Mode{mode.Reading, mode.Chat, mode.CountCurrency} {
		if !m.Passive() {
			t.Errorf("%q.Passive() = false, want true", m)
		}
	}
}
