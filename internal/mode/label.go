package mode

// Label is a command category produced by the intent resolver. The label set
// is a superset of the mode names and includes the legacy short forms used by
// the training data ("start", "stop", "count", "reset").
type Label string

const (
	// LabelBackground means no actionable command was recognised.
	LabelBackground Label = "background"

	LabelStart Label = "start"
	LabelStop  Label = "stop"
	LabelCount Label = "count"
	LabelReset Label = "reset"
)

// labelAliases maps the short command forms onto modes. Every other label
// maps onto the mode with the same name.
var labelAliases = map[Label]Mode{
	LabelStart: ActiveVision,
	LabelStop:  Idle,
	LabelCount: CountCurrency,
	LabelReset: ResetLanguage,
}

// ModeFor returns the mode a label asks for. ok is false for
// [LabelBackground] and for labels outside the vocabulary; callers treat that
// as "no change".
func ModeFor(l Label) (m Mode, ok bool) {
	if l == LabelBackground {
		return "", false
	}
	if m, ok := labelAliases[l]; ok {
		return m, true
	}
	m = Mode(l)
	return m, m.IsValid()
}

// Confirmable reports whether switching to m should be confirmed aloud
// before the handler runs.
func Confirmable(m Mode) bool {
	switch m {
	case Reading, CountCurrency, Chat:
		return true
	}
	return false
}
