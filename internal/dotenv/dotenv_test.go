package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp env file: %v", err)
	}
	return path
}

func TestLoadParsesFile(t *testing.T) {
	path := writeFile(t, `
# session endpoint
VOLTDESK_TEST_A=plain
export VOLTDESK_TEST_B="quoted value"
VOLTDESK_TEST_C='single quoted'
VOLTDESK_TEST_D=inline # trailing comment

not a pair
=novalue
`)
	for _, key := range []string{"VOLTDESK_TEST_A", "VOLTDESK_TEST_B", "VOLTDESK_TEST_C", "VOLTDESK_TEST_D"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]string{
		"VOLTDESK_TEST_A": "plain",
		"VOLTDESK_TEST_B": "quoted value",
		"VOLTDESK_TEST_C": "single quoted",
		"VOLTDESK_TEST_D": "inline",
	}
	for key, value := range want {
		if got := os.Getenv(key); got != value {
			t.Fatalf("%s=%q, want %q", key, got, value)
		}
	}
}

func TestLoadPreservesExistingEnv(t *testing.T) {
	path := writeFile(t, "VOLTDESK_TEST_KEEP=from-file\n")
	t.Setenv("VOLTDESK_TEST_KEEP", "from-env")

	if err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := os.Getenv("VOLTDESK_TEST_KEEP"); got != "from-env" {
		t.Fatalf("existing env overwritten: %q", got)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}
