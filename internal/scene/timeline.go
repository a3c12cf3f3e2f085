// Package scene plays one audio clip while progressively mutating a
// displayed-image set according to a time-indexed event list.
package scene

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// DisplayType is the mutation an event applies to the display set.
type DisplayType string

const (
	// DisplayInsert seeds a fallback image that repopulates the display
	// set whenever it would otherwise become empty.
	DisplayInsert DisplayType = "insert"
	// DisplayAdd appends the image if not already present.
	DisplayAdd DisplayType = "add"
	// DisplayRemove removes the image if present.
	DisplayRemove DisplayType = "remove"
	// DisplayRemoveLastAndAdd drops the most recently added image, then
	// appends the new one.
	DisplayRemoveLastAndAdd DisplayType = "remove_last_and_add"
	// DisplayRemoveAllAndAdd clears the set and shows only the new image.
	DisplayRemoveAllAndAdd DisplayType = "remove_all_and_add"
)

// Valid reports whether t is a known display type.
func (t DisplayType) Valid() bool {
	switch t {
	case DisplayInsert, DisplayAdd, DisplayRemove, DisplayRemoveLastAndAdd, DisplayRemoveAllAndAdd:
		return true
	}
	return false
}

// Event is one timeline entry: show/hide an image at an absolute playback
// time in seconds.
type Event struct {
	Image string
	At    float64
	Type  DisplayType
}

// Timeline is a normalized scene: one audio clip plus events sorted by
// non-decreasing time. A single-image scene is a timeline with one
// zero-time insert event.
type Timeline struct {
	Audio  string
	Events []Event
}

// Single builds the single-image form of a scene.
func Single(audio, image string) Timeline {
	return Timeline{
		Audio:  audio,
		Events: []Event{{Image: image, At: 0, Type: DisplayInsert}},
	}
}

// Normalize sorts events ascending by time. The sort is stable so that
// events sharing a timestamp keep their config order.
func (tl *Timeline) Normalize() {
	sort.SliceStable(tl.Events, func(i, j int) bool {
		return tl.Events[i].At < tl.Events[j].At
	})
}

// ParseTimecode converts a time value in textual form to absolute seconds.
// Accepted forms: bare seconds ("12", "7.5"), "M:SS" and "H:MM:SS".
// Malformed values default to 0 so a bad config entry degrades to an
// at-start event instead of breaking the scene.
func ParseTimecode(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) == 1 {
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || v < 0 {
			slog.Warn("malformed scene timecode, defaulting to 0", "value", s)
			return 0
		}
		return v
	}
	if len(parts) > 3 {
		slog.Warn("malformed scene timecode, defaulting to 0", "value", s)
		return 0
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			slog.Warn("malformed scene timecode, defaulting to 0", "value", s)
			return 0
		}
		total = total*60 + v
	}
	return total
}
