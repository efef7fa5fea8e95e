package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nhartono/daftar/internal/compose"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

type stubExtractor struct {
	result map[string]any
	err    error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, _ *schema.FormSchema, _ string, _ []session.Turn, _ string) (map[string]any, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubComposer struct {
	reply  string
	err    error
	lastTC compose.TurnContext
}

func (s *stubComposer) NextReply(_ context.Context, _ *schema.FormSchema, _ *session.State, tc compose.TurnContext) (string, error) {
	s.lastTC = tc
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testForm(t *testing.T) *schema.FormSchema {
	t.Helper()
	f, err := schema.Load([]byte(`
form_name: Test
sections:
  - name: school_info
    label: Informasi Sekolah
    required_field_count: 1
    fields:
      - name: tingkatan
        label: Tingkatan
        type: single-select
        required: true
        allowed_values: [Kelas 1, Kelas 7]
      - name: no_telepon
        label: No. Telepon
        type: phone
        validation_pattern: "^[0-9]{10,15}$"
  - name: student_data
    label: Data Siswa
    description: Data diri calon siswa.
    required_field_count: 1
    fields:
      - {name: nama_lengkap, label: Nama Lengkap, type: short-text, required: true}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return f
}

func newTestEngine(t *testing.T, ex Extractor, comp Composer) (*Engine, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	eng, err := New(testForm(t), store, ex, comp, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, store
}

func TestProcessMessage_NormalTurn(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{"tingkatan": "Kelas 1"}}
	comp := &stubComposer{reply: "Sudah saya catat, Kelas 1 ya."}
	eng, store := newTestEngine(t, ex, comp)

	res, err := eng.ProcessMessage(context.Background(), "s1", "anak saya mau masuk kelas 1")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if res.Reply != "Sudah saya catat, Kelas 1 ya." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if res.CurrentSection != "school_info" {
		t.Errorf("section advanced without a skip: %q", res.CurrentSection)
	}
	if !res.CanAdvance {
		t.Error("one filled field should open the gate")
	}

	st, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Data["tingkatan"] != "Kelas 1" {
		t.Errorf("committed data = %v", st.Data)
	}
	if len(st.History) != 2 || st.History[0].Role != "user" || st.History[1].Role != "assistant" {
		t.Errorf("history = %+v, want user turn then assistant turn", st.History)
	}
}

func TestProcessMessage_EmptyIDCreatesSession(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{}}
	comp := &stubComposer{reply: "Halo! Sekolah mana yang dituju?"}
	eng, store := newTestEngine(t, ex, comp)

	res, err := eng.ProcessMessage(context.Background(), "", "halo")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("no session id generated")
	}
	if _, err := store.Get(context.Background(), res.SessionID); err != nil {
		t.Errorf("new session not committed: %v", err)
	}
	if res.CurrentSection != "school_info" {
		t.Errorf("new session starts at %q", res.CurrentSection)
	}
}

func TestProcessMessage_SkipDeniedBelowThreshold(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{"tingkatan": "Kelas 1"}}
	comp := &stubComposer{reply: "ok"}
	eng, store := newTestEngine(t, ex, comp)

	res, err := eng.ProcessMessage(context.Background(), "s1", "lanjut")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if ex.calls != 0 {
		t.Error("skip turn must not call the extractor")
	}
	if res.CurrentSection != "school_info" {
		t.Errorf("section = %q, want unchanged", res.CurrentSection)
	}
	if !strings.Contains(res.Reply, "minimal 1 field") {
		t.Errorf("denial reply = %q", res.Reply)
	}

	// The denied skip itself is still a committed conversation turn.
	st, _ := store.Get(context.Background(), "s1")
	if len(st.History) != 2 {
		t.Errorf("history = %d turns, want 2", len(st.History))
	}
}

func TestProcessMessage_SkipAdvancesWhenComplete(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{"tingkatan": "Kelas 1"}}
	comp := &stubComposer{reply: "ok"}
	eng, _ := newTestEngine(t, ex, comp)

	if _, err := eng.ProcessMessage(context.Background(), "s1", "kelas 1"); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	res, err := eng.ProcessMessage(context.Background(), "s1", "sudah cukup")
	if err != nil {
		t.Fatalf("skip turn: %v", err)
	}
	if res.CurrentSection != "student_data" {
		t.Errorf("section = %q, want student_data", res.CurrentSection)
	}
	if !strings.Contains(res.Reply, "Data Siswa") {
		t.Errorf("transition reply = %q", res.Reply)
	}
}

func TestProcessMessage_SkipOnLastSection(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{"nama_lengkap": "Budi"}}
	comp := &stubComposer{reply: "ok"}
	eng, store := newTestEngine(t, ex, comp)

	seed := session.New("s1", "student_data")
	seed.SetField("nama_lengkap", "Budi")
	if err := store.Create(context.Background(), seed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := eng.ProcessMessage(context.Background(), "s1", "lanjut")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.CurrentSection != "student_data" {
		t.Errorf("terminal skip moved the section: %q", res.CurrentSection)
	}
	if !res.Done {
		t.Error("complete last section should report done")
	}
}

func TestProcessMessage_StaleSectionResets(t *testing.T) {
	// A schema reload can rename a section out from under a stored
	// session; the next turn must reposition instead of crashing.
	ex := &stubExtractor{result: map[string]any{"tingkatan": "Kelas 1"}}
	comp := &stubComposer{reply: "ok"}
	eng, store := newTestEngine(t, ex, comp)

	seed := session.New("s1", "bagian_lama")
	seed.SetField("nama_lengkap", "Budi")
	seed.PendingField = "nama_lengkap"
	if err := store.Create(context.Background(), seed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := eng.ProcessMessage(context.Background(), "s1", "lanjut")
	if err != nil {
		t.Fatalf("skip turn on stale section: %v", err)
	}
	if res.CurrentSection != "school_info" {
		t.Errorf("section = %q, want reset to first", res.CurrentSection)
	}
	if !strings.Contains(res.Reply, "minimal 1 field") {
		t.Errorf("reply = %q, want denial for the reset section", res.Reply)
	}

	st, _ := store.Get(context.Background(), "s1")
	if st.CurrentSection != "school_info" {
		t.Errorf("committed section = %q", st.CurrentSection)
	}
	if st.Data["nama_lengkap"] != "Budi" {
		t.Error("collected data lost on reset")
	}
	if st.PendingField != "" {
		t.Errorf("pending field = %q, want cleared", st.PendingField)
	}

	// A data-bearing turn works from the reset position too.
	if _, err := eng.ProcessMessage(context.Background(), "s1", "kelas 1"); err != nil {
		t.Fatalf("normal turn after reset: %v", err)
	}
	st, _ = store.Get(context.Background(), "s1")
	if st.Data["tingkatan"] != "Kelas 1" {
		t.Errorf("data = %v", st.Data)
	}
}

func TestProcessMessage_GenerationFailureCommitsNothing(t *testing.T) {
	t.Run("extraction transport error", func(t *testing.T) {
		ex := &stubExtractor{err: errors.New("connection refused")}
		eng, store := newTestEngine(t, ex, &stubComposer{reply: "ok"})

		_, err := eng.ProcessMessage(context.Background(), "s1", "halo")
		if !errors.Is(err, ErrGenerationUnavailable) {
			t.Fatalf("err = %v, want ErrGenerationUnavailable", err)
		}
		// The brand-new session must not exist either.
		if _, err := store.Get(context.Background(), "s1"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("failed turn leaked state: %v", err)
		}
	})

	t.Run("composition error on existing session", func(t *testing.T) {
		ex := &stubExtractor{result: map[string]any{"tingkatan": "Kelas 1"}}
		comp := &stubComposer{err: errors.New("timeout")}
		eng, store := newTestEngine(t, ex, comp)

		seed := session.New("s1", "school_info")
		if err := store.Create(context.Background(), seed); err != nil {
			t.Fatalf("Create: %v", err)
		}

		_, err := eng.ProcessMessage(context.Background(), "s1", "kelas 1")
		if !errors.Is(err, ErrGenerationUnavailable) {
			t.Fatalf("err = %v, want ErrGenerationUnavailable", err)
		}

		st, _ := store.Get(context.Background(), "s1")
		if len(st.History) != 0 {
			t.Errorf("failed turn committed history: %+v", st.History)
		}
		if _, ok := st.Data["tingkatan"]; ok {
			t.Error("failed turn committed extracted data")
		}
	})
}

func TestProcessMessage_StoresInvalidValueAndFlagsIt(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{"no_telepon": "abc"}}
	comp := &stubComposer{reply: "Nomor teleponnya sepertinya belum benar."}
	eng, store := newTestEngine(t, ex, comp)

	if _, err := eng.ProcessMessage(context.Background(), "s1", "telepon saya abc"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	st, _ := store.Get(context.Background(), "s1")
	if st.Data["no_telepon"] != "abc" {
		t.Errorf("invalid value not stored: %v", st.Data)
	}
	if len(comp.lastTC.ValidationProblems) != 1 || !strings.Contains(comp.lastTC.ValidationProblems[0], "No. Telepon") {
		t.Errorf("validation problems = %v", comp.lastTC.ValidationProblems)
	}
}

func TestProcessMessage_AnsweringAheadStored(t *testing.T) {
	ex := &stubExtractor{result: map[string]any{
		"tingkatan":    "Kelas 7",
		"nama_lengkap": "Siti Rahma",
	}}
	comp := &stubComposer{reply: "ok"}
	eng, store := newTestEngine(t, ex, comp)

	if _, err := eng.ProcessMessage(context.Background(), "s1", "kelas 7, nama anak saya Siti Rahma"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	st, _ := store.Get(context.Background(), "s1")
	if st.Data["nama_lengkap"] != "Siti Rahma" {
		t.Error("field for a later section was dropped")
	}
	if st.CurrentSection != "school_info" {
		t.Errorf("answering ahead moved the section: %q", st.CurrentSection)
	}
}

func TestWantsSkip_SubstringMatching(t *testing.T) {
	eng, _ := newTestEngine(t, &stubExtractor{}, &stubComposer{reply: "ok"})

	tests := []struct {
		msg  string
		want bool
	}{
		{"lanjut", true},
		{"LANJUT AJA", true},
		{"oke, langsung lanjut saja", true},
		{"skip dulu", true},
		{"gak usah", true},
		{"nama saya Budi", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := eng.wantsSkip(tt.msg); got != tt.want {
			t.Errorf("wantsSkip(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestWantsSkip_CustomKeywords(t *testing.T) {
	store := session.NewMemoryStore()
	eng, err := New(testForm(t), store, &stubExtractor{}, &stubComposer{reply: "ok"}, Options{
		SkipKeywords: []string{"terusin"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !eng.wantsSkip("terusin aja") {
		t.Error("custom keyword not honored")
	}
	if eng.wantsSkip("lanjut") {
		t.Error("default keywords should be replaced, not merged")
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, &stubExtractor{}, &stubComposer{reply: "ok"})

	st, err := eng.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if st.SessionID == "" || st.CurrentSection != "school_info" {
		t.Errorf("created session = %+v", st)
	}

	got, err := eng.GetSession(ctx, st.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SessionID != st.SessionID {
		t.Errorf("GetSession id = %q", got.SessionID)
	}

	updated, err := eng.SetField(ctx, st.SessionID, "akta_kelahiran", "/data/uploads/x.pdf")
	if err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if updated.Data["akta_kelahiran"] != "/data/uploads/x.pdf" {
		t.Errorf("SetField not applied: %v", updated.Data)
	}

	if err := eng.DeleteSession(ctx, st.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := eng.GetSession(ctx, st.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession after delete = %v", err)
	}
}
