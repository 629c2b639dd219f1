package memory

import "strings"

// DefaultShortTermCapacity bounds the short-term tier.
const DefaultShortTermCapacity = 10

const unknownTimeLabel = "unknown time"

// Tiers is the three-level recency memory carried in the save document.
// Short-term is a bounded FIFO whose overflow becomes the oldest mid-term
// items. Mid-term grows until summarized. Long-term is append-only.
type Tiers struct {
	ShortTerm []string `json:"short_term"`
	MidTerm   []string `json:"mid_term"`
	LongTerm  []string `json:"long_term"`
}

// Append stamps content with "[timeLabel] " unless it already carries a
// bracketed prefix, pushes it to short-term, and shifts overflow into
// mid-term in order. capacity <= 0 means DefaultShortTermCapacity.
func (t *Tiers) Append(content, timeLabel string, capacity int) {
	if capacity <= 0 {
		capacity = DefaultShortTermCapacity
	}
	if timeLabel == "" {
		timeLabel = unknownTimeLabel
	}
	if !strings.HasPrefix(content, "[") {
		content = "[" + timeLabel + "] " + content
	}
	t.ShortTerm = append(t.ShortTerm, content)
	for len(t.ShortTerm) > capacity {
		t.MidTerm = append(t.MidTerm, t.ShortTerm[0])
		t.ShortTerm = t.ShortTerm[1:]
	}
}

// Promote appends summaries to long-term and drops the first consumed items
// from mid-term. The caller must have taken those items from the front.
func (t *Tiers) Promote(consumed int, summaries []string) {
	t.LongTerm = append(t.LongTerm, summaries...)
	if consumed <= 0 {
		return
	}
	if consumed > len(t.MidTerm) {
		consumed = len(t.MidTerm)
	}
	t.MidTerm = append([]string(nil), t.MidTerm[consumed:]...)
}

func (t Tiers) Empty() bool {
	return len(t.ShortTerm) == 0 && len(t.MidTerm) == 0 && len(t.LongTerm) == 0
}

// Clone returns a copy that shares no backing arrays with t.
func (t Tiers) Clone() Tiers {
	return Tiers{
		ShortTerm: append([]string{}, t.ShortTerm...),
		MidTerm:   append([]string{}, t.MidTerm...),
		LongTerm:  append([]string{}, t.LongTerm...),
	}
}
