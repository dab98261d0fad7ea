package build

import (
	"os"
	"testing"
)

// TestConfigDir tests getting and setting the chunker config directory.
func TestConfigDir(t *testing.T) {
	if err := os.Unsetenv(chunkerDataDir); err != nil {
		t.Error(err)
	}

	dir := ConfigDir()
	if dir != defaultConfigDir() {
		t.Errorf("expected %v but got %v", defaultConfigDir(), dir)
	}

	newDir := "foo/bar"
	if err := os.Setenv(chunkerDataDir, newDir); err != nil {
		t.Error(err)
	}
	defer os.Unsetenv(chunkerDataDir)

	dir = ConfigDir()
	if dir != newDir {
		t.Errorf("expected %v but got %v", newDir, dir)
	}
}

// TestStateFilePath tests that the state file path is rooted at the config
// directory and named after the repo uuid.
func TestStateFilePath(t *testing.T) {
	if err := os.Setenv(chunkerDataDir, "/tmp/chunkertest"); err != nil {
		t.Error(err)
	}
	defer os.Unsetenv(chunkerDataDir)

	uuid := "abc123"
	path := StateFilePath(uuid)
	want := "/tmp/chunkertest/abc123.state"
	if path != want {
		t.Errorf("expected %v but got %v", want, path)
	}
}
