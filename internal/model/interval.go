package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

type Interval string

const (
	OneMinute     Interval = "1m"
	ThreeMinutes  Interval = "3m"
	FiveMinutes   Interval = "5m"
	ThirtyMinutes Interval = "30m"
	OneHour       Interval = "1h"
)

var Intervals = []Interval{OneMinute, ThreeMinutes, FiveMinutes, ThirtyMinutes, OneHour}

func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("%w %q: supported values are 1m, 3m, 5m, 30m, 1h", ErrInvalidInterval, s)
	}
	return i, nil
}

func (i Interval) Valid() bool {
	switch i {
	case OneMinute, ThreeMinutes, FiveMinutes, ThirtyMinutes, OneHour:
		return true
	default:
		return false
	}
}

func (i Interval) Duration() time.Duration {
	switch i {
	case OneMinute:
		return time.Minute
	case ThreeMinutes:
		return 3 * time.Minute
	case FiveMinutes:
		return 5 * time.Minute
	case ThirtyMinutes:
		return 30 * time.Minute
	case OneHour:
		return time.Hour
	default:
		return 0
	}
}

func (i Interval) String() string {
	return string(i)
}
