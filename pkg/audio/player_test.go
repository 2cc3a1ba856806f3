package audio

import (
	"testing"

	"github.com/faiface/beep/effects"
)

func TestPlayer_SetMasterClamps(t *testing.T) {
	t.Parallel()
	p := NewPlayer(0)
	if p.Master() != 1 {
		t.Fatalf("initial master = %v, want 1", p.Master())
	}
	if got := p.SetMaster(1.4); got != 1 {
		t.Errorf("SetMaster(1.4) = %v, want 1", got)
	}
	if got := p.SetMaster(-0.2); got != 0 {
		t.Errorf("SetMaster(-0.2) = %v, want 0", got)
	}
	if got := p.SetMaster(0.3); got != 0.3 || p.Master() != 0.3 {
		t.Errorf("SetMaster(0.3) = %v, Master() = %v", got, p.Master())
	}
}

func TestGain(t *testing.T) {
	t.Parallel()
	if v, ok := gain(nil, 0).(*effects.Volume); !ok || !v.Silent {
		t.Error("gain 0 should be silent")
	}
	v, ok := gain(nil, 0.5).(*effects.Volume)
	if !ok || v.Volume != -1 {
		t.Errorf("gain 0.5 volume = %+v, want -1", v)
	}
	if _, ok := gain(nil, 1).(*effects.Volume); ok {
		t.Error("gain 1 should not wrap")
	}
}
