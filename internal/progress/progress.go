// Package progress holds the pure completion queries over a form schema and
// a snapshot of collected values. Nothing here performs I/O or mutates
// state; the engine calls these after every turn.
package progress

import "github.com/nhartono/daftar/internal/schema"

// Filled reports whether a collected value counts as filled. Absent, nil,
// empty string, and empty slice all count as missing.
func Filled(v any, ok bool) bool {
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

// MissingFields lists, in section order, the fields of sectionName that are
// required in the current context and not yet filled. Requiredness is
// evaluated against the whole data map, so a dependency on a field from an
// earlier section resolves correctly.
func MissingFields(f *schema.FormSchema, sectionName string, data map[string]any) []string {
	sec := f.Section(sectionName)
	if sec == nil {
		return nil
	}
	var missing []string
	for _, fd := range sec.Fields {
		if !f.IsFieldRequired(sectionName, fd.Name, data) {
			continue
		}
		v, ok := data[fd.Name]
		if !Filled(v, ok) {
			missing = append(missing, fd.Name)
		}
	}
	return missing
}

// FilledCount counts how many of the section's own fields hold a filled
// value, required or not.
func FilledCount(f *schema.FormSchema, sectionName string, data map[string]any) int {
	sec := f.Section(sectionName)
	if sec == nil {
		return 0
	}
	n := 0
	for _, fd := range sec.Fields {
		v, ok := data[fd.Name]
		if Filled(v, ok) {
			n++
		}
	}
	return n
}

// IsSectionComplete applies the section's count threshold: filled fields in
// the section >= required_field_count. This is not "all required fields
// filled". A section can satisfy its threshold with optional fields while
// MissingFields still reports required gaps, and a threshold of 0 is always
// complete.
func IsSectionComplete(f *schema.FormSchema, sectionName string, data map[string]any) bool {
	sec := f.Section(sectionName)
	if sec == nil {
		return false
	}
	return FilledCount(f, sectionName, data) >= sec.RequiredFieldCount
}

// CanAdvance reports whether the section's gate is open. Today identical to
// IsSectionComplete; kept separate so advancement policy can diverge from
// raw completeness without touching callers.
func CanAdvance(f *schema.FormSchema, sectionName string, data map[string]any) bool {
	return IsSectionComplete(f, sectionName, data)
}

// CompletionPercentage is the whole-form ratio of filled required slots to
// total required slots, scaled to [0,100]. Each section contributes at most
// its required_field_count filled fields. Zero declared slots yields 0.
func CompletionPercentage(f *schema.FormSchema, data map[string]any) float64 {
	total := 0
	filled := 0
	for _, sec := range f.Sections {
		total += sec.RequiredFieldCount
		n := FilledCount(f, sec.Name, data)
		if n > sec.RequiredFieldCount {
			n = sec.RequiredFieldCount
		}
		filled += n
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total) * 100
}
