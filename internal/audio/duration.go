package audio

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Duration is a segment length in whole seconds.
type Duration int

const (
	// DefaultDuration is ten minutes.
	DefaultDuration Duration = 600
	// MinDuration is the one-minute floor of the minutes control.
	MinDuration Duration = 60
	// MaxMinutes is the largest minutes value that converts without overflow.
	MaxMinutes = math.MaxInt / 60
)

// ErrInvalidDuration is returned for durations under MinDuration.
var ErrInvalidDuration = errors.New("audio: segment duration must be at least 60 seconds")

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// FromMinutes converts the minutes control value to a Duration.
// Values below one minute are clamped to one minute and values above
// MaxMinutes to MaxMinutes.
func FromMinutes(minutes int) Duration {
	if minutes < 1 {
		minutes = 1
	}
	if minutes > MaxMinutes {
		minutes = MaxMinutes
	}
	return Duration(minutes) * MinDuration
}

// ParseMinutes reads a minutes value typed by the user.
// Only the leading integer is used; anything unparsable becomes one minute.
// Out-of-range numbers saturate before clamping.
func ParseMinutes(s string) Duration {
	m := leadingInt.FindString(strings.TrimSpace(s))
	n, err := strconv.Atoi(m)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return FromMinutes(1)
	}
	return FromMinutes(n)
}

// Validate reports whether d is usable as a segment duration.
func (d Duration) Validate() error {
	if d < MinDuration {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, int(d))
	}
	return nil
}

// Seconds returns d in seconds.
func (d Duration) Seconds() int { return int(d) }

// Minutes returns d in whole minutes.
func (d Duration) Minutes() int { return int(d) / 60 }

// Arg renders d as the whole-seconds token passed to the engine.
func (d Duration) Arg() string { return strconv.Itoa(int(d)) }
