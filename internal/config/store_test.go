package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"reflect"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoad_AbsentFileIsEmptyDocument(t *testing.T) {
	s := testStore(t)

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on absent file returned error: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("Load() on absent file = %v, want empty document", doc)
	}
}

func TestUpdateSection_CreatesDocument(t *testing.T) {
	s := testStore(t)

	if err := s.UpdateSection("feedback", map[string]any{"github_token": "t1"}); err != nil {
		t.Fatalf("UpdateSection() returned error: %v", err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if doc["feedback"]["github_token"] != "t1" {
		t.Errorf("document = %v, missing feedback.github_token", doc)
	}
}

// Regression: saving one integration's token must not drop another's.
func TestUpdateSection_PreservesSiblingSections(t *testing.T) {
	s := testStore(t)

	if err := s.UpdateSection("feedback", map[string]any{"github_token": "feedback-token"}); err != nil {
		t.Fatalf("first UpdateSection() returned error: %v", err)
	}
	if err := s.UpdateSection("github", map[string]any{"api_token": "github-token"}); err != nil {
		t.Fatalf("second UpdateSection() returned error: %v", err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if doc["feedback"]["github_token"] != "feedback-token" {
		t.Errorf("feedback.github_token lost, document = %v", doc)
	}
	if doc["github"]["api_token"] != "github-token" {
		t.Errorf("github.api_token lost, document = %v", doc)
	}
}

func TestUpdateSection_Idempotent(t *testing.T) {
	s := testStore(t)
	values := map[string]any{"github_token": "t1", "enabled": true}

	if err := s.UpdateSection("feedback", values); err != nil {
		t.Fatalf("UpdateSection() returned error: %v", err)
	}
	once, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if err := s.UpdateSection("feedback", values); err != nil {
		t.Fatalf("repeated UpdateSection() returned error: %v", err)
	}
	twice, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("document changed on repeated update:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestUpdateSection_MergesWithinSection(t *testing.T) {
	s := testStore(t)

	if err := s.UpdateSection("feedback", map[string]any{"github_token": "t1", "repo": "a/b"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSection("feedback", map[string]any{"github_token": "t2"}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc["feedback"]["github_token"] != "t2" {
		t.Errorf("updated key not overwritten: %v", doc["feedback"])
	}
	if doc["feedback"]["repo"] != "a/b" {
		t.Errorf("untouched key lost: %v", doc["feedback"])
	}
}

func TestLoad_CorruptFileQuarantined(t *testing.T) {
	s := testStore(t)
	if err := os.WriteFile(s.Path(), []byte("{{{ not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load() = %v, want ErrCorrupt", err)
	}
	if len(doc) != 0 {
		t.Errorf("Load() on corrupt file = %v, want empty document", doc)
	}

	// Broken original kept for inspection, primary path now absent.
	if _, err := os.Stat(s.Path() + ".corrupt"); err != nil {
		t.Errorf("corrupt file not quarantined: %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("primary document still present after quarantine")
	}

	// Writes proceed on defaults afterwards.
	if err := s.UpdateSection("feedback", map[string]any{"github_token": "t1"}); err != nil {
		t.Fatalf("UpdateSection() after corruption returned error: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Errorf("Load() after rebuild returned error: %v", err)
	}
}

func TestSection_CopyIsolation(t *testing.T) {
	s := testStore(t)
	if err := s.UpdateSection("feedback", map[string]any{"github_token": "t1"}); err != nil {
		t.Fatal(err)
	}

	section, err := s.Section("feedback")
	if err != nil {
		t.Fatal(err)
	}
	section["github_token"] = "mutated"

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc["feedback"]["github_token"] != "t1" {
		t.Error("mutating a returned section leaked into the store")
	}
}

func TestTypedSections_Defaults(t *testing.T) {
	s := testStore(t)
	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}

	if got := s.Server(doc).Port; got != DefaultPort {
		t.Errorf("Server().Port = %d, want %d", got, DefaultPort)
	}
	if got := s.Logging(doc); got.Level != "info" || got.Format != "text" {
		t.Errorf("Logging() defaults = %+v", got)
	}
	if got := s.Update(doc); got.StagingDir == "" || got.CheckSchedule == "" {
		t.Errorf("Update() defaults = %+v", got)
	}
	if got := s.Tracing(doc); got.Enabled || got.SampleRate != 1.0 {
		t.Errorf("Tracing() defaults = %+v", got)
	}
}

func TestTypedSections_FromDocument(t *testing.T) {
	s := testStore(t)
	if err := s.UpdateSection("server", map[string]any{"port": 9999}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSection("update", map[string]any{"staging_dir": "/downloads", "auto_apply": true}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Server(doc).Port; got != 9999 {
		t.Errorf("Server().Port = %d, want 9999", got)
	}
	upd := s.Update(doc)
	if upd.StagingDir != "/downloads" || !upd.AutoApply {
		t.Errorf("Update() = %+v", upd)
	}
}

func TestServer_InvalidPortFallsBack(t *testing.T) {
	s := testStore(t)
	if err := s.UpdateSection("server", map[string]any{"port": -4}); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Server(doc).Port; got != DefaultPort {
		t.Errorf("Server().Port = %d, want fallback %d", got, DefaultPort)
	}
}
