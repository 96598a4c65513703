package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"upgrade-tracker/internal/model"
)

// parseLength reads a user-entered duration such as "2d 4h 30m", "1mo 15d"
// or "45m". Units: y, mo, w, d, h, m, s. Whitespace between parts is
// optional. The result is normalized; an empty or all-zero input is an
// error because a timer needs a real duration.
func parseLength(text string) (model.Duration, error) {
	var d model.Duration
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return d, fmt.Errorf("empty duration")
	}

	i := 0
	for i < len(s) {
		for i < len(s) && unicode.IsSpace(rune(s[i])) {
			i++
		}
		if i == len(s) {
			break
		}

		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return model.Duration{}, fmt.Errorf("expected a number at %q", s[start:])
		}
		value, err := strconv.Atoi(s[start:i])
		if err != nil {
			return model.Duration{}, err
		}

		unitStart := i
		for i < len(s) && s[i] >= 'a' && s[i] <= 'z' {
			i++
		}
		switch s[unitStart:i] {
		case "y":
			d.Years += value
		case "mo":
			d.Months += value
		case "w":
			d.Days += value * 7
		case "d":
			d.Days += value
		case "h":
			d.Hours += value
		case "m", "min":
			d.Minutes += value
		case "s":
			d.Seconds += value
		default:
			return model.Duration{}, fmt.Errorf("unknown unit %q", s[unitStart:i])
		}
	}

	d = d.Normalize()
	if d.IsZero() {
		return model.Duration{}, fmt.Errorf("duration must be longer than zero")
	}
	return d, nil
}
