package holidays

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTime matches every NormalizeTime validation failure.
var ErrInvalidTime = errors.New("invalid time of day")

const (
	textTimeFormat = "Время должно быть в формате ЧЧ:ММ"
	textTimeRange  = "Недопустимое значение часов или минут"
)

// timeError carries a user-facing message and matches ErrInvalidTime.
type timeError struct{ msg string }

func (e *timeError) Error() string        { return e.msg }
func (e *timeError) Is(target error) bool { return target == ErrInvalidTime }

// NormalizeTime validates an HH:MM time of day and returns it zero padded.
// One-digit fields are accepted ("8:5" -> "08:05").
func NormalizeTime(value string) (string, error) {
	h, m, err := parseClock(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// ParseClock returns hour and minute of a valid HH:MM value.
func ParseClock(value string) (hour, minute int, err error) {
	return parseClock(value)
}

func parseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, &timeError{textTimeFormat}
	}
	h, ok1 := atoiDigits(parts[0])
	m, ok2 := atoiDigits(parts[1])
	if !ok1 || !ok2 {
		return 0, 0, &timeError{textTimeFormat}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, &timeError{textTimeRange}
	}
	return h, m, nil
}

func atoiDigits(s string) (int, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
