package schema

import "fmt"

// FieldType enumerates the kinds of data a field collects.
type FieldType string

const (
	TypeShortText    FieldType = "short-text"
	TypeNumber       FieldType = "number"
	TypeDate         FieldType = "date"
	TypeSingleSelect FieldType = "single-select"
	TypePhone        FieldType = "phone"
	TypeEmail        FieldType = "email"
	TypeFile         FieldType = "file-reference"
	TypeLongText     FieldType = "long-text"
)

// FieldDefinition describes a single datum to collect. DependsOn maps another
// field's name to the set of values for which this field becomes required;
// when absent, the static Required flag governs alone.
type FieldDefinition struct {
	Name              string              `yaml:"name" json:"name"`
	Label             string              `yaml:"label" json:"label"`
	Type              FieldType           `yaml:"type" json:"type"`
	Required          bool                `yaml:"required" json:"required"`
	Skippable         bool                `yaml:"skippable" json:"skippable"`
	ValidationPattern string              `yaml:"validation_pattern,omitempty" json:"validation_pattern,omitempty"`
	AllowedValues     []string            `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
	DependsOn         map[string][]string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Placeholder       string              `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	HelpText          string              `yaml:"help_text,omitempty" json:"help_text,omitempty"`
}

// SectionDefinition is an ordered group of fields. RequiredFieldCount is the
// minimum number of this section's fields that must be filled before the
// section counts as complete; it is a count threshold, not a checklist of
// the fields marked required.
type SectionDefinition struct {
	Name               string            `yaml:"name" json:"name"`
	Label              string            `yaml:"label" json:"label"`
	Description        string            `yaml:"description,omitempty" json:"description,omitempty"`
	Fields             []FieldDefinition `yaml:"fields" json:"fields"`
	RequiredFieldCount int               `yaml:"required_field_count" json:"required_field_count"`
	Skippable          bool              `yaml:"skippable" json:"skippable"`
}

// Field returns the named field of this section, or nil.
func (s *SectionDefinition) Field(name string) *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// FormSchema is the immutable description of the whole form. Section order
// defines the only allowed forward-advance order.
type FormSchema struct {
	FormName string              `yaml:"form_name" json:"form_name"`
	Version  string              `yaml:"version" json:"version"`
	Sections []SectionDefinition `yaml:"sections" json:"sections"`

	byName map[string]int
}

// Section returns the named section, or nil when it does not exist.
func (f *FormSchema) Section(name string) *SectionDefinition {
	i, ok := f.byName[name]
	if !ok {
		return nil
	}
	return &f.Sections[i]
}

// FirstSection returns the name of the schema's first section.
func (f *FormSchema) FirstSection() string {
	return f.Sections[0].Name
}

// NextSection returns the section following name in schema order. The second
// result is false when name is the last section (terminal) or unknown.
func (f *FormSchema) NextSection(name string) (string, bool) {
	i, ok := f.byName[name]
	if !ok || i+1 >= len(f.Sections) {
		return "", false
	}
	return f.Sections[i+1].Name, true
}

// IsLastSection reports whether name is the schema's final section.
func (f *FormSchema) IsLastSection(name string) bool {
	i, ok := f.byName[name]
	return ok && i == len(f.Sections)-1
}

// FieldAnywhere looks a field up by name across all sections. Field names
// are unique schema-wide, enforced at load time.
func (f *FormSchema) FieldAnywhere(name string) (*FieldDefinition, *SectionDefinition) {
	for i := range f.Sections {
		if fd := f.Sections[i].Field(name); fd != nil {
			return fd, &f.Sections[i]
		}
	}
	return nil, nil
}

// IsFieldRequired evaluates requiredness of a field in context. Without a
// depends_on predicate the static Required flag decides. With one, the field
// is required only when the referenced field's current value lies in the
// trigger set; a missing context value means the condition is not met.
// Pure and total: unknown section or field simply yields false.
func (f *FormSchema) IsFieldRequired(sectionName, fieldName string, context map[string]any) bool {
	sec := f.Section(sectionName)
	if sec == nil {
		return false
	}
	fd := sec.Field(fieldName)
	if fd == nil {
		return false
	}
	if len(fd.DependsOn) == 0 {
		return fd.Required
	}
	for key, trigger := range fd.DependsOn {
		cur, ok := context[key]
		if !ok {
			return false
		}
		if !containsValue(trigger, cur) {
			return false
		}
	}
	return true
}

func containsValue(set []string, v any) bool {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
