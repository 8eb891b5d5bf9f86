package ando

import (
	"fmt"

	"padcast/internal/plugin"
)

const maxTemplateLen = 1023

// ShouldSend reports whether d wants updates from machine given the log's
// on-air state.
func ShouldSend(d *Destination, machine int, onAir bool) bool {
	switch d.Flag(machine) {
	case On:
		return true
	case OnAirOnly:
		return onAir
	default:
		return false
	}
}

// FormatTemplate builds the update template for d. The %g and %n
// placeholders are left for the host resolver.
//
//	legacy   ^artist~title~MM:SS~%g~album~%n|
//	enhanced ^artist~title~HH:MM:SS~%g~%n~album~label|
func FormatTemplate(d *Destination, now *plugin.Pad) string {
	length := 0
	if now != nil && now.Length > 0 {
		length = now.Length
	}

	var s string
	if d.Label == "" {
		s = fmt.Sprintf("^%s~%s~%02d:%02d~%%g~%s~%%n|",
			d.Artist, d.Title,
			length/60000, (length%60000)/1000,
			d.Album)
	} else {
		hours := length / 3600000
		minutes := (length - hours*3600000) / 60000
		seconds := (length - hours*3600000 - minutes*60000) / 1000
		s = fmt.Sprintf("^%s~%s~%02d:%02d:%02d~%%g~%%n~%s~%s|",
			d.Artist, d.Title,
			hours, minutes, seconds,
			d.Album, d.Label)
	}
	return truncate(s, maxTemplateLen)
}
