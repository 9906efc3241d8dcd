package overlay

import (
	"regexp"

	"github.com/hpungsan/csm-companion/internal/errors"
)

// Mode is the widget display mode.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeCompact Mode = "compact"
)

// Default widget position.
const (
	DefaultLeft = "2.6%"
	DefaultTop  = "60%"
)

// Prefs survive case switches; everything else is recomputed per case.
type Prefs struct {
	Left string `json:"left"`
	Top  string `json:"top"`
	Mode Mode   `json:"mode"`
}

// DefaultPrefs returns the initial position and mode.
func DefaultPrefs() Prefs {
	return Prefs{Left: DefaultLeft, Top: DefaultTop, Mode: ModeFull}
}

var cssOffset = regexp.MustCompile(`^-?\d+(\.\d+)?(px|%)$`)

// ValidOffset reports whether s is a pixel or percentage offset.
func ValidOffset(s string) bool {
	return cssOffset.MatchString(s)
}

// ParseMode validates a display mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeCompact:
		return Mode(s), nil
	}
	return "", errors.NewInvalidRequest("mode must be full or compact")
}
