package grader

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// ExactMatch is 1 when both values are empty or deeply equal.
func ExactMatch(expected, actual any) int {
	if isEmpty(expected) && isEmpty(actual) {
		return 1
	}
	if reflect.DeepEqual(expected, actual) {
		return 1
	}
	return 0
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil() || isEmpty(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}

// ValueInList is 1 when result matches expected, or one element of it,
// after trimming space. A nil expected matches only a nil result.
func ValueInList(expected any, result *string) int {
	if result == nil {
		if expected == nil {
			return 1
		}
		return 0
	}
	want := strings.TrimSpace(*result)
	switch e := expected.(type) {
	case string:
		if strings.TrimSpace(e) == want {
			return 1
		}
	case []string:
		for _, item := range e {
			if strings.TrimSpace(item) == want {
				return 1
			}
		}
	case []any:
		for _, item := range e {
			if s, ok := item.(string); ok && strings.TrimSpace(s) == want {
				return 1
			}
		}
	}
	return 0
}

// PreferenceMatch scores identified preferences: correct identifications
// minus false positives, over the number expected, clamped at 0 and rounded
// to two places. Lists compare without regard to order.
func PreferenceMatch(expected, actual map[string]any) float64 {
	if len(expected) == 0 {
		if len(actual) == 0 {
			return 1
		}
		return 0
	}

	correct, falsePositives := 0, 0
	for k, v := range actual {
		want, ok := expected[k]
		if ok && samePreference(want, v) {
			correct++
		} else {
			falsePositives++
		}
	}

	score := float64(correct-falsePositives) / float64(len(expected))
	return math.Round(math.Max(0, score)*100) / 100
}

func samePreference(want, got any) bool {
	wl, wok := asList(want)
	gl, gok := asList(got)
	if wok && gok {
		return reflect.DeepEqual(sorted(wl), sorted(gl))
	}
	return reflect.DeepEqual(want, got)
}

func asList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = fmt.Sprint(e)
		}
		return out, true
	}
	return nil, false
}

func sorted(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}
