package scene

import (
	"encoding/json"
	"fmt"
)

// flexSeconds accepts a playback time either as bare seconds (number) or
// as an "H:MM:SS"/"M:SS" string. Malformed strings default to 0.
type flexSeconds float64

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 {
			n = 0
		}
		*f = flexSeconds(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexSeconds(ParseTimecode(s))
		return nil
	}
	*f = 0
	return nil
}

type rawEvent struct {
	ImagePath   string      `json:"imagePath"`
	DisplayTime flexSeconds `json:"displayTime"`
	DisplayType DisplayType `json:"displayType"`
}

type rawScene struct {
	AudioPath string     `json:"audioPath"`
	ImagePath string     `json:"imagePath"`
	Events    []rawEvent `json:"events"`
}

// ParseTimeline decodes either scene form from JSON: a single static image
// plus audio, or an audio path with an ordered event list. The tolerance
// lives here at the boundary; the returned Timeline is strict and
// normalized.
func ParseTimeline(data []byte) (Timeline, error) {
	var raw rawScene
	if err := json.Unmarshal(data, &raw); err != nil {
		return Timeline{}, fmt.Errorf("decode scene config: %w", err)
	}
	if raw.AudioPath == "" {
		return Timeline{}, fmt.Errorf("scene config missing audioPath")
	}

	if len(raw.Events) == 0 {
		if raw.ImagePath == "" {
			return Timeline{}, fmt.Errorf("scene config has neither events nor imagePath")
		}
		return Single(raw.AudioPath, raw.ImagePath), nil
	}

	tl := Timeline{Audio: raw.AudioPath}
	for _, ev := range raw.Events {
		if ev.ImagePath == "" {
			continue
		}
		tl.Events = append(tl.Events, Event{
			Image: ev.ImagePath,
			At:    float64(ev.DisplayTime),
			Type:  ev.DisplayType,
		})
	}
	tl.Normalize()
	return tl, nil
}
