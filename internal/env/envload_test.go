package env

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("QUEUE_DB_PATH=/tmp/q.sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveDotEnvPrefersExplicitFile(t *testing.T) {
	root := t.TempDir()
	explicit := filepath.Join(root, "custom.env")
	writeFile(t, explicit)
	writeFile(t, filepath.Join(root, ".env"))

	got, err := resolveDotEnv(explicit, "off", root, "")
	if err != nil {
		t.Fatalf("resolveDotEnv() error = %v", err)
	}
	if got != explicit {
		t.Fatalf("resolveDotEnv() = %q, want %q", got, explicit)
	}

	if _, err := resolveDotEnv(filepath.Join(root, "missing.env"), "", root, ""); err == nil {
		t.Fatal("resolveDotEnv() with a missing explicit file should fail")
	}
}

func TestResolveDotEnvWalksUpThenUserConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	userFile := filepath.Join(root, "config", "regsync", "regsync.env")
	writeFile(t, userFile)

	got, err := resolveDotEnv("", "", nested, userFile)
	if err != nil {
		t.Fatalf("resolveDotEnv() error = %v", err)
	}
	if got != userFile {
		t.Fatalf("resolveDotEnv() = %q, want user config %q", got, userFile)
	}

	project := filepath.Join(root, "a", ".env")
	writeFile(t, project)
	got, err = resolveDotEnv("", "", nested, userFile)
	if err != nil {
		t.Fatalf("resolveDotEnv() error = %v", err)
	}
	if got != project {
		t.Fatalf("resolveDotEnv() = %q, want %q", got, project)
	}
}

func TestResolveDotEnvOff(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"))
	got, err := resolveDotEnv("", " OFF ", root, "")
	if err != nil || got != "" {
		t.Fatalf("resolveDotEnv() = %q, %v; want disabled", got, err)
	}
}
