package memory

// DefaultWindowSize is the default capacity of the short-term window.
const DefaultWindowSize = 10

// Turn is one conversation turn held by the short-term window.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ShortTermWindow is a fixed-size FIFO of the most recent conversation
// turns. Pushing beyond capacity evicts the oldest turn. The window survives
// restarts by rehydrating from the durable store at session start.
type ShortTermWindow struct {
	turns []Turn
	size  int
}

// NewShortTermWindow creates a window holding at most size turns.
// A non-positive size falls back to DefaultWindowSize.
func NewShortTermWindow(size int) *ShortTermWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &ShortTermWindow{size: size}
}

// Push appends a turn, evicting the oldest when the window is full.
func (s *ShortTermWindow) Push(role, content string) {
	s.turns = append(s.turns, Turn{Role: role, Content: content})
	if len(s.turns) > s.size {
		s.turns = s.turns[len(s.turns)-s.size:]
	}
}

// Rehydrate replaces the window contents with stored turns.
//
// turns must be ordered oldest first; only the last size entries are kept.
func (s *ShortTermWindow) Rehydrate(turns []Turn) {
	if len(turns) > s.size {
		turns = turns[len(turns)-s.size:]
	}
	s.turns = make([]Turn, len(turns))
	copy(s.turns, turns)
}

// Turns returns a copy of the window contents, oldest first.
func (s *ShortTermWindow) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns currently held.
func (s *ShortTermWindow) Len() int {
	return len(s.turns)
}

// Size returns the window capacity.
func (s *ShortTermWindow) Size() int {
	return s.size
}
