package schema

import "testing"

func TestNextSection_Order(t *testing.T) {
	f := Default()

	next, ok := f.NextSection("school_info")
	if !ok || next != "student_data" {
		t.Errorf("NextSection(school_info) = %q, %v", next, ok)
	}

	if _, ok := f.NextSection("documents"); ok {
		t.Error("last section should have no successor")
	}
	if _, ok := f.NextSection("nope"); ok {
		t.Error("unknown section should have no successor")
	}
}

func TestIsFieldRequired_Static(t *testing.T) {
	f := Default()

	if !f.IsFieldRequired("student_data", "nama_lengkap", nil) {
		t.Error("nama_lengkap should be required")
	}
	if f.IsFieldRequired("student_data", "email", nil) {
		t.Error("email should be optional")
	}
	if f.IsFieldRequired("student_data", "ghost", nil) {
		t.Error("unknown field should never be required")
	}
	if f.IsFieldRequired("ghost", "nama_lengkap", nil) {
		t.Error("unknown section should never be required")
	}
}

func TestIsFieldRequired_Conditional(t *testing.T) {
	f := Default()

	// ijazah_terakhir carries required: false plus a depends_on on
	// tingkatan; the condition alone decides once a dependency exists.
	tests := []struct {
		name    string
		context map[string]any
		want    bool
	}{
		{"no context", nil, false},
		{"triggering grade", map[string]any{"tingkatan": "Kelas 7"}, true},
		{"non-triggering grade", map[string]any{"tingkatan": "TK A"}, false},
		{"unrelated context", map[string]any{"nama_lengkap": "Budi"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.IsFieldRequired("documents", "ijazah_terakhir", tt.context)
			if got != tt.want {
				t.Errorf("IsFieldRequired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFieldAnywhere(t *testing.T) {
	f := Default()

	fd, sec := f.FieldAnywhere("nama_ayah")
	if fd == nil || sec == nil {
		t.Fatal("nama_ayah not found")
	}
	if sec.Name != "parent_data" {
		t.Errorf("owning section = %q, want parent_data", sec.Name)
	}

	if fd, _ := f.FieldAnywhere("ghost"); fd != nil {
		t.Error("ghost should not resolve")
	}
}
