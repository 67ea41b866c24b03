package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

func (s *sample) Validate() error {
	if s.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "relay")
	var s sample
	if err := Parse([]byte("name: ${SAMPLE_NAME}\nlimit: 3\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "relay" || s.Limit != 3 {
		t.Errorf("got %+v", s)
	}
}

func TestParse_Validates(t *testing.T) {
	var s sample
	err := Parse([]byte("limit: -1\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	s := sample{Name: "default", Limit: 1}
	if err := LoadOptional(filepath.Join(dir, "nope.yaml"), &s); err != nil {
		t.Fatalf("missing file should keep defaults: %v", err)
	}
	if s.Name != "default" {
		t.Errorf("name = %q", s.Name)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("limit: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadOptional(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Limit != 7 {
		t.Errorf("got %+v", s)
	}
}
