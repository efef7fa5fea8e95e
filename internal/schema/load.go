package schema

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed default_form.yaml
var defaultFormYAML []byte

// SchemaError reports a malformed form configuration. It is fatal at
// startup: an engine must refuse to serve any session on a schema that
// failed to load.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "schema: " + e.Reason
}

func schemaErrorf(format string, args ...any) *SchemaError {
	return &SchemaError{Reason: fmt.Sprintf(format, args...)}
}

// Load parses a YAML (or JSON, which YAML subsumes) form document and
// validates it. Returns *SchemaError on any structural problem.
func Load(raw []byte) (*FormSchema, error) {
	var f FormSchema
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, schemaErrorf("parsing form document: %v", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and parses the form document at path.
func LoadFile(path string) (*FormSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading form document: %w", err)
	}
	return Load(raw)
}

// Default returns the embedded YPI Al-Azhar registration form.
func Default() *FormSchema {
	f, err := Load(defaultFormYAML)
	if err != nil {
		// The embedded document is validated by tests; failing here means
		// the binary itself is broken.
		panic(err)
	}
	return f
}

func (f *FormSchema) validate() error {
	if len(f.Sections) == 0 {
		return schemaErrorf("form %q declares no sections", f.FormName)
	}

	f.byName = make(map[string]int, len(f.Sections))
	fieldOwner := make(map[string]string)

	for i := range f.Sections {
		sec := &f.Sections[i]
		if sec.Name == "" {
			return schemaErrorf("section %d has no name", i)
		}
		if _, dup := f.byName[sec.Name]; dup {
			return schemaErrorf("duplicate section name %q", sec.Name)
		}
		f.byName[sec.Name] = i

		if len(sec.Fields) == 0 {
			return schemaErrorf("section %q declares no fields", sec.Name)
		}
		if sec.RequiredFieldCount < 0 {
			return schemaErrorf("section %q: negative required_field_count", sec.Name)
		}

		for j := range sec.Fields {
			fd := &sec.Fields[j]
			if fd.Name == "" {
				return schemaErrorf("section %q: field %d has no name", sec.Name, j)
			}
			if owner, dup := fieldOwner[fd.Name]; dup {
				return schemaErrorf("field %q appears in both %q and %q; field names must be unique across the schema", fd.Name, owner, sec.Name)
			}
			fieldOwner[fd.Name] = sec.Name

			if !validFieldType(fd.Type) {
				return schemaErrorf("field %q: unknown type %q", fd.Name, fd.Type)
			}
			if fd.Type == TypeSingleSelect && len(fd.AllowedValues) == 0 {
				return schemaErrorf("field %q: single-select requires allowed_values", fd.Name)
			}
			if fd.ValidationPattern != "" {
				if _, err := regexp.Compile(fd.ValidationPattern); err != nil {
					return schemaErrorf("field %q: invalid validation_pattern: %v", fd.Name, err)
				}
			}
		}
	}

	// depends_on targets must exist somewhere in the schema.
	for i := range f.Sections {
		for j := range f.Sections[i].Fields {
			fd := &f.Sections[i].Fields[j]
			for ref := range fd.DependsOn {
				if _, ok := fieldOwner[ref]; !ok {
					return schemaErrorf("field %q: depends_on references unknown field %q", fd.Name, ref)
				}
			}
		}
	}

	return nil
}

func validFieldType(t FieldType) bool {
	switch t {
	case TypeShortText, TypeNumber, TypeDate, TypeSingleSelect,
		TypePhone, TypeEmail, TypeFile, TypeLongText:
		return true
	}
	return false
}

// ValidateValue checks a collected value against the field's
// validation_pattern and allowed_values. An empty message means the value is
// acceptable. Values are matched as their string form; non-string scalars
// are formatted first.
func ValidateValue(fd *FieldDefinition, value any) string {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprintf("%v", value)
	}

	if len(fd.AllowedValues) > 0 && !containsValue(fd.AllowedValues, s) {
		return fmt.Sprintf("%s harus salah satu dari pilihan yang tersedia", fd.Label)
	}
	if fd.ValidationPattern != "" {
		re, err := regexp.Compile(fd.ValidationPattern)
		if err != nil {
			return ""
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("format %s tidak sesuai", fd.Label)
		}
	}
	return ""
}
