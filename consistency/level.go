/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package consistency

import (
	"fmt"
	"strings"
)

// Level is the replication guarantee requested for a single read or write.
// Values are ordered by strength; the zero value means "not set".
type Level int

const (
	Unset Level = iota
	Any
	One
	Two
	Three
	LocalQuorum
	EachQuorum
	Quorum
	All
)

var levelNames = map[Level]string{
	Unset:       "UNSET",
	Any:         "ANY",
	One:         "ONE",
	Two:         "TWO",
	Three:       "THREE",
	LocalQuorum: "LOCAL_QUORUM",
	EachQuorum:  "EACH_QUORUM",
	Quorum:      "QUORUM",
	All:         "ALL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// IsSet reports whether l carries an explicit level.
func (l Level) IsSet() bool {
	return l != Unset
}

// Stronger reports whether l asks for more replicas than other.
func (l Level) Stronger(other Level) bool {
	return l > other
}

// IsStrong reports whether reads at this level must observe the latest
// acknowledged write. Backends without tunable replication map this to their
// strongly consistent read mode.
func (l Level) IsStrong() bool {
	return l >= LocalQuorum
}

// ParseLevel converts a textual level ("quorum", "LOCAL_QUORUM") to a Level.
func ParseLevel(value string) (Level, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for level, name := range levelNames {
		if level != Unset && name == normalized {
			return level, nil
		}
	}
	return Unset, fmt.Errorf("unknown consistency level %q", value)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so levels can be read
// straight from YAML or JSON configuration.
func (l *Level) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*l = Unset
		return nil
	}
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
