package sweep

import (
	"unicode/utf8"
)

// Message sizing defaults. Sizes are counted in characters (runes) because
// chat destinations enforce character limits and log lines are often UTF-8.
const (
	DefaultMessageCeiling = 4000
	DefaultEventCap       = 300
	DefaultEventLimit     = 100
)

// ReportOverhead is the markup the notifier wraps around a combined body:
// "*" + label + "*" + " [partial]" + "\n\n".
const ReportOverhead = len("**") + len(partialMarker) + len("\n\n")

const partialMarker = " [partial]"

// GroupOverhead is the markup of a group block excluding the group name and
// its text; see Block.
var GroupOverhead = utf8.RuneCountInString(formatBlock("", true, ""))

// Budget bounds the size of everything the sweeper produces.
type Budget struct {
	MessageCeiling int // hard ceiling of one chat message
	EventCap       int // per-event cap, after trimming
	EventLimit     int // events requested per group
}

func (b Budget) withDefaults() Budget {
	if b.MessageCeiling <= 0 {
		b.MessageCeiling = DefaultMessageCeiling
	}
	if b.EventCap <= 0 {
		b.EventCap = DefaultEventCap
	}
	if b.EventLimit <= 0 {
		b.EventLimit = DefaultEventLimit
	}
	return b
}

// GroupText is the room left for a group's event text once its heading and
// fences are accounted for.
func (b Budget) GroupText(group string) int {
	return b.MessageCeiling - utf8.RuneCountInString(group) - GroupOverhead
}

// Body is the room left for the combined body once the time label header is
// accounted for.
func (b Budget) Body(label string) int {
	return b.MessageCeiling - utf8.RuneCountInString(label) - ReportOverhead
}

// TruncateToBudget cuts text to at most budget runes. The bool reports
// whether anything was actually removed.
func TruncateToBudget(text string, budget int) (string, bool) {
	if budget <= 0 {
		return "", text != ""
	}
	if len(text) <= budget {
		// Byte length bounds rune count, so this is exact and cheap.
		return text, false
	}
	n := 0
	for i := range text {
		if n == budget {
			return text[:i], true
		}
		n++
	}
	return text, false
}
