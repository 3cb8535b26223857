package annotation

import (
	"fmt"
	"strconv"
	"strings"
)

// Session selects which label of a multi-annotator cell record is used: the
// opinion given in a numbered annotation session, or the consensus label.
type Session struct {
	number int // 0 means consensus
}

// Consensus selects the precomputed consensus label.
var Consensus = Session{}

// SessionNumber selects the n-th annotation session (1-based).
func SessionNumber(n int) Session {
	if n < 1 {
		panic(fmt.Sprintf("annotation session number must be >= 1, got %d", n))
	}
	return Session{number: n}
}

// IsConsensus reports whether s selects the consensus label.
func (s Session) IsConsensus() bool {
	return s.number == 0
}

// Number returns the 1-based session number, or 0 for consensus.
func (s Session) Number() int {
	return s.number
}

// String returns "consensus" or the session number.
func (s Session) String() string {
	if s.IsConsensus() {
		return "consensus"
	}
	return strconv.Itoa(s.number)
}

// ParseSession parses "consensus" or a positive session number.
func ParseSession(s string) (Session, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "consensus") {
		return Consensus, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Session{}, fmt.Errorf("invalid annotation session %q (valid: positive number or consensus)", s)
	}
	return SessionNumber(n), nil
}
