package model

import "fmt"

// Duration is an upgrade period as the user entered it. Days, months and
// years stay independent buckets: days never carry into months because
// month length is ambiguous.
type Duration struct {
	Years   int
	Months  int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// Normalize returns a carry-resolved copy: seconds in [0,60), minutes in
// [0,60), hours in [0,24), months in [0,12). Negative components are
// clamped to zero, never reported as an error.
func (d Duration) Normalize() Duration {
	d.clampNegative()

	d.Minutes += d.Seconds / 60
	d.Seconds %= 60

	d.Hours += d.Minutes / 60
	d.Minutes %= 60

	d.Days += d.Hours / 24
	d.Hours %= 24

	d.Years += d.Months / 12
	d.Months %= 12

	return d
}

func (d *Duration) clampNegative() {
	for _, p := range []*int{&d.Years, &d.Months, &d.Days, &d.Hours, &d.Minutes, &d.Seconds} {
		if *p < 0 {
			*p = 0
		}
	}
}

// IsZero reports whether every component is zero.
func (d Duration) IsZero() bool {
	return d.Years == 0 && d.Months == 0 && d.Days == 0 &&
		d.Hours == 0 && d.Minutes == 0 && d.Seconds == 0
}

func (d Duration) String() string {
	n := d.Normalize()
	out := ""
	add := func(v int, unit string) {
		if v == 0 {
			return
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", v, unit)
	}
	add(n.Years, "y")
	add(n.Months, "mo")
	add(n.Days, "d")
	add(n.Hours, "h")
	add(n.Minutes, "m")
	add(n.Seconds, "s")
	if out == "" {
		return "0s"
	}
	return out
}
