// Package extract holds the best-effort field heuristics shared by the
// provider adapters: ordered candidate lists with a plausibility check per
// field, and the category defaults used when nothing passes.
package extract

import "strings"

// Accessor pulls one candidate value out of a provider-native record.
type Accessor[T any] func(T) string

// First evaluates accessors in order and returns the first trimmed value
// accepted by valid, or "" when none is. A nil valid accepts any non-empty
// value. Accessors that panic on odd input are treated as empty.
func First[T any](raw T, valid func(string) bool, accessors ...Accessor[T]) string {
	for _, acc := range accessors {
		v := strings.TrimSpace(safeCall(acc, raw))
		if v == "" {
			continue
		}
		if valid == nil || valid(v) {
			return v
		}
	}
	return ""
}

func safeCall[T any](acc Accessor[T], raw T) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	return acc(raw)
}

// Or returns the first non-empty value.
func Or(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// StringHash is the 32-bit rolling hash ((h<<5)-h)+c over the string's
// UTF-16 code units, returned as a non-negative int64. It turns opaque
// provider ids into stable numeric ids.
func StringHash(s string) int64 {
	var h int32
	for _, r := range s {
		if r >= 0x10000 {
			// Surrogate pair, to match UTF-16 code-unit hashing.
			r -= 0x10000
			h = (h << 5) - h + int32(0xD800+(r>>10))
			h = (h << 5) - h + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = (h << 5) - h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// EstimateAttendees synthesizes a display-only attendee count in [50, 549]
// for providers that report none. It is derived from the event id so the
// same event always shows the same number.
func EstimateAttendees(id int64) int {
	if id < 0 {
		id = -id
	}
	return 50 + int(id%500)
}
