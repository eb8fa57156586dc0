package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("NBG_TEST_NAME", "from-env")
	p := writeConfig(t, "name: ${NBG_TEST_NAME}\nport: ${NBG_TEST_PORT:-9000}\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "from-env" || s.Port != 9000 {
		t.Fatalf("loaded = %+v", s)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	p := writeConfig(t, "name: x\n")
	s := sample{Port: 8080}
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 8080 || s.Name != "x" {
		t.Fatalf("loaded = %+v", s)
	}
}

func TestLoadRunsValidation(t *testing.T) {
	p := writeConfig(t, "name: x\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Error("expected error for missing file")
	}
	if err := Load(writeConfig(t, "port: [unterminated"), &s); err == nil {
		t.Error("expected error for bad yaml")
	}
}

func TestLoadOptional(t *testing.T) {
	s := sample{Port: 1}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("missing file should keep defaults: %v", err)
	}
	var empty sample
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &empty); err == nil {
		t.Fatal("defaults should still be validated")
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("NBG_SET", "v")
	t.Setenv("NBG_EMPTY", "")
	cases := map[string]string{
		"$NBG_SET":            "v",
		"${NBG_SET:-x}":       "v",
		"${NBG_EMPTY:-x}":     "x",
		"${NBG_UNSET_VAR}":    "",
		"a-${NBG_UNSET:-b}-c": "a-b-c",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}
