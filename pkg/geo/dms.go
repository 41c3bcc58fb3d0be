// Package geo formats coordinates for human-readable alert messages.
package geo

import (
	"fmt"
	"math"
)

// DMS renders a decimal-degree value as degrees, minutes and seconds with a hemisphere letter.
func DMS(value float64, positive, negative string) string {
	hemi := positive
	if value < 0 {
		hemi = negative
	}
	v := math.Abs(value)
	deg := math.Floor(v)
	minFloat := (v - deg) * 60
	min := math.Floor(minFloat)
	sec := (minFloat - min) * 60

	// rounding can push seconds to 60.0
	if math.Round(sec*100)/100 >= 60 {
		sec = 0
		min++
	}
	if min >= 60 {
		min = 0
		deg++
	}
	return fmt.Sprintf("%d°%02d'%05.2f\"%s", int(deg), int(min), sec, hemi)
}

// Lat formats a latitude.
func Lat(v float64) string { return DMS(v, "N", "S") }

// Lng formats a longitude.
func Lng(v float64) string { return DMS(v, "E", "W") }
