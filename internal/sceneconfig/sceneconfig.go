// Package sceneconfig resolves the flow-level scene configuration: which
// intro, remediation-intro and outro scenes a category plays. Config files
// in the wild come in several shapes; the tolerance lives here and the
// result is a strict PhaseScenes value.
package sceneconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mquintela/falatest/internal/scene"
)

// PhaseScenes holds the per-phase scenes for one category. Any entry may be
// nil, in which case the flow skips that scene.
type PhaseScenes struct {
	Intro            *scene.Timeline
	RemediationIntro *scene.Timeline
	Outro            *scene.Timeline
}

// aliases maps known category-name misspellings, found in shipped config
// files, onto their canonical names.
var aliases = map[string]string{
	"montains": "mountains",
}

// normalizeName canonicalizes a category name for config lookup.
func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	if canonical, ok := aliases[n]; ok {
		return canonical
	}
	return n
}

type phasedObject struct {
	Intro            json.RawMessage `json:"intro"`
	RemediationIntro json.RawMessage `json:"remediationIntro"`
	Outro            json.RawMessage `json:"outro"`
}

// ForCategory extracts the phase scenes for the given category from a
// config document. Three shapes are accepted:
//   - a flat single-scene object (used as the intro scene only),
//   - a direct phased object with intro/remediationIntro/outro keys,
//     bound to whatever category is active,
//   - a wrapper keyed by normalized category name whose values are phased
//     objects or ordered [intro, remediationIntro, outro] lists.
func ForCategory(data []byte, category string) (PhaseScenes, error) {
	// Flat single scene: the document itself is a scene config.
	if tl, err := scene.ParseTimeline(data); err == nil {
		return PhaseScenes{Intro: &tl}, nil
	}

	var phased phasedObject
	if err := json.Unmarshal(data, &phased); err == nil && !phased.empty() {
		return phased.scenes()
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return PhaseScenes{}, fmt.Errorf("decode scene config document: %w", err)
	}

	want := normalizeName(category)
	for key, raw := range wrapper {
		if normalizeName(key) != want {
			continue
		}
		return parseEntry(raw)
	}
	return PhaseScenes{}, fmt.Errorf("scene config has no entry for category %q", category)
}

func (p phasedObject) empty() bool {
	return len(p.Intro) == 0 && len(p.RemediationIntro) == 0 && len(p.Outro) == 0
}

func (p phasedObject) scenes() (PhaseScenes, error) {
	var out PhaseScenes
	var err error
	if out.Intro, err = parseOptional(p.Intro, "intro"); err != nil {
		return PhaseScenes{}, err
	}
	if out.RemediationIntro, err = parseOptional(p.RemediationIntro, "remediationIntro"); err != nil {
		return PhaseScenes{}, err
	}
	if out.Outro, err = parseOptional(p.Outro, "outro"); err != nil {
		return PhaseScenes{}, err
	}
	return out, nil
}

func parseOptional(raw json.RawMessage, phase string) (*scene.Timeline, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	tl, err := scene.ParseTimeline(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s scene: %w", phase, err)
	}
	return &tl, nil
}

// parseEntry handles one wrapper value: a phased object or an ordered list.
func parseEntry(raw json.RawMessage) (PhaseScenes, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out PhaseScenes
		targets := []**scene.Timeline{&out.Intro, &out.RemediationIntro, &out.Outro}
		names := []string{"intro", "remediationIntro", "outro"}
		for i, item := range list {
			if i >= len(targets) {
				break
			}
			tl, err := parseOptional(item, names[i])
			if err != nil {
				return PhaseScenes{}, err
			}
			*targets[i] = tl
		}
		return out, nil
	}

	var phased phasedObject
	if err := json.Unmarshal(raw, &phased); err != nil {
		return PhaseScenes{}, fmt.Errorf("decode category scene entry: %w", err)
	}
	return phased.scenes()
}
