package user

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/BaSui01/weatherbot/eval/conversation"
)

//go:embed data/*
var dataFS embed.FS

// ProfileSource hands out customer profiles.
type ProfileSource interface {
	Next() (conversation.CustomerProfile, error)
}

// =============================================================================
// 📋 StandardGenerator
// =============================================================================

// StandardGenerator cycles through the curated profiles in
// data/user_profiles.json.
type StandardGenerator struct {
	raw      []map[string]any
	profiles []conversation.CustomerProfile
	next     int
}

// NewStandardGenerator loads the curated profiles with no overrides.
func NewStandardGenerator() (*StandardGenerator, error) {
	b, err := dataFS.ReadFile("data/user_profiles.json")
	if err != nil {
		return nil, fmt.Errorf("read user profiles: %w", err)
	}
	return newStandardGenerator(b)
}

func newStandardGenerator(b []byte) (*StandardGenerator, error) {
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode user profiles: %w", err)
	}
	g := &StandardGenerator{raw: raw}
	g.ValidProfiles(nil, nil)
	return g, nil
}

// ValidProfiles rebuilds the profile list. profileOverrides replace
// top-level profile fields and attributeOverrides replace entries of the
// attribute dict; keys a profile does not have are ignored. The cycle
// restarts from the first profile.
func (g *StandardGenerator) ValidProfiles(profileOverrides, attributeOverrides map[string]any) []conversation.CustomerProfile {
	out := make([]conversation.CustomerProfile, 0, len(g.raw))
	for _, raw := range g.raw {
		details := make(map[string]any, len(raw))
		for k, v := range raw {
			details[k] = v
		}
		for k, v := range profileOverrides {
			if _, ok := details[k]; ok {
				details[k] = v
			}
		}

		attrs := map[string]any{}
		if m, ok := details["attribute_dict"].(map[string]any); ok {
			for k, v := range m {
				attrs[k] = v
			}
		}
		for k, v := range attributeOverrides {
			if _, ok := attrs[k]; ok {
				attrs[k] = v
			}
		}

		prompt := strings.NewReplacer(
			"{location}", field(details, "location"),
			"{personality}", field(details, "personality"),
			"{weather_question}", field(details, "weather_question"),
			"{other}", field(details, "other"),
		).Replace(standardProfileTemplate)

		out = append(out, conversation.CustomerProfile{
			Name:       field(details, "name"),
			Prompt:     prompt,
			Attributes: attrs,
		})
	}
	g.profiles = out
	g.next = 0
	return out
}

// field reads a profile field; missing and null values read as "".
func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Next returns the next profile, wrapping around at the end.
func (g *StandardGenerator) Next() (conversation.CustomerProfile, error) {
	if len(g.profiles) == 0 {
		return conversation.CustomerProfile{}, fmt.Errorf("no standard profiles loaded")
	}
	p := g.profiles[g.next]
	g.next = (g.next + 1) % len(g.profiles)
	return p.Clone(), nil
}

// =============================================================================
// 🎲 RandomGenerator
// =============================================================================

// RandomGenerator composes profiles from a random place, personality and
// weather question.
type RandomGenerator struct {
	places        []string
	personalities []string
	questions     []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomGenerator loads the embedded data files. A nil rng uses a
// randomly seeded source.
func NewRandomGenerator(rng *rand.Rand) (*RandomGenerator, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	g := &RandomGenerator{rng: rng}
	var err error
	if g.places, err = readLines("data/places.txt"); err != nil {
		return nil, err
	}
	if g.personalities, err = readLines("data/personality.txt"); err != nil {
		return nil, err
	}
	if g.questions, err = readLines("data/weather_questions.txt"); err != nil {
		return nil, err
	}
	return g, nil
}

func readLines(name string) ([]string, error) {
	b, err := dataFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	return lines, sc.Err()
}

// Next draws a new profile.
func (g *RandomGenerator) Next() (conversation.CustomerProfile, error) {
	g.mu.Lock()
	place := g.places[g.rng.IntN(len(g.places))]
	personality := g.personalities[g.rng.IntN(len(g.personalities))]
	line := g.questions[g.rng.IntN(len(g.questions))]
	g.mu.Unlock()

	city, state, ok := strings.Cut(place, ", ")
	if !ok {
		return conversation.CustomerProfile{}, fmt.Errorf("malformed place %q", place)
	}
	question, rawAttrs, ok := strings.Cut(line, ", {")
	if !ok {
		return conversation.CustomerProfile{}, fmt.Errorf("malformed weather question %q", line)
	}
	var qa struct {
		WeatherCategory string `json:"weather_category"`
	}
	if err := json.Unmarshal([]byte("{"+rawAttrs), &qa); err != nil {
		return conversation.CustomerProfile{}, fmt.Errorf("decode weather question attributes: %w", err)
	}

	prompt := strings.NewReplacer(
		"{place}", place,
		"{personality}", personality,
		"{weather_question}", question,
	).Replace(randomProfileTemplate)

	return conversation.CustomerProfile{
		Name:   "randomly generated user",
		Prompt: prompt,
		Attributes: map[string]any{
			"location":         map[string]any{"city": city, "state": state},
			"weather_category": qa.WeatherCategory,
		},
	}, nil
}
