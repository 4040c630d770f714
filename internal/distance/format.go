package distance

import (
	"fmt"
	"math"
	"strings"
)

const feetPerMeter = 3.28084

// Unit is a display unit for distances.
type Unit string

const (
	Meters     Unit = "m"
	Kilometers Unit = "km"
	Feet       Unit = "ft"
)

// ParseUnit accepts the short and long unit names. Empty means meters.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "meter", "meters", "metre", "metres":
		return Meters, nil
	case "km", "kilometer", "kilometers", "kilometre", "kilometres":
		return Kilometers, nil
	case "ft", "foot", "feet":
		return Feet, nil
	}
	return "", fmt.Errorf("unknown distance unit %q", s)
}

// MetersToFeet converts meters to feet.
func MetersToFeet(m float64) float64 {
	return m * feetPerMeter
}

// Format renders a distance for display. Distances of a kilometer or
// more, or any distance when unit is Kilometers, are shown in km with
// two decimals; meters and feet are rounded to whole units.
func Format(meters float64, unit Unit) string {
	switch {
	case unit == Kilometers || (unit != Feet && meters >= 1000):
		return fmt.Sprintf("%.2f km", meters/1000)
	case unit == Feet:
		return fmt.Sprintf("%d ft", int64(math.Round(MetersToFeet(meters))))
	default:
		return fmt.Sprintf("%d m", int64(math.Round(meters)))
	}
}

// FormatCompact renders meters with one decimal below ten meters, as
// used for putting distances, followed by the rounded feet.
func FormatCompact(meters float64) string {
	var m string
	if meters < 10 {
		m = fmt.Sprintf("%.1fm", meters)
	} else {
		m = fmt.Sprintf("%dm", int64(math.Round(meters)))
	}
	return fmt.Sprintf("%s (%dft)", m, int64(math.Round(MetersToFeet(meters))))
}
