package conflict

import (
	"fmt"
	"strings"
)

// Strategy is a closed set of resolution policies: KeepUser, KeepGenerated
// and Merge. The unexported method keeps other packages from adding cases.
type Strategy interface {
	fmt.Stringer
	isStrategy()
}

// KeepUser accepts the current content as the new baseline.
type KeepUser struct{}

// KeepGenerated discards the user's edits and restores the generated content.
type KeepGenerated struct{}

// Merge is reserved for a future three-way merge and is always rejected.
type Merge struct{}

func (KeepUser) isStrategy()      {}
func (KeepGenerated) isStrategy() {}
func (Merge) isStrategy()         {}

func (KeepUser) String() string      { return "keep-user" }
func (KeepGenerated) String() string { return "keep-generated" }
func (Merge) String() string         { return "merge" }

// ParseStrategy maps a strategy name to its value. Underscores and case are
// ignored, so "KEEP_USER" and "keep-user" are the same.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-") {
	case "keep-user", "user", "ours":
		return KeepUser{}, nil
	case "keep-generated", "generated", "theirs":
		return KeepGenerated{}, nil
	case "merge":
		return Merge{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want keep-user, keep-generated or merge)", name)
	}
}

func strategyName(s Strategy) string {
	if s == nil {
		return "<nil>"
	}
	return s.String()
}
