package config

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestSetAndGetRepoConfigValue(t *testing.T) {
	repoPath := t.TempDir()

	if err := SetRepoConfigValue(repoPath, "user.email", "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	got, err := GetConfigValue(repoPath, "user.email")
	if err != nil {
		t.Fatal(err)
	}
	if got != "alice@example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestGetConfigValueMissingKey(t *testing.T) {
	repoPath := t.TempDir()
	if _, err := GetConfigValue(repoPath, "nope"); err == nil {
		t.Fatal("expected an error for a missing key")
	}
}

func TestLoadIdentityGeneratesAndPersistsReplicaID(t *testing.T) {
	repoPath := t.TempDir()

	first, err := LoadIdentity(repoPath)
	if err != nil {
		t.Fatal(err)
	}
	if first.ReplicaID == uuid.Nil {
		t.Fatal("expected a generated replica ID")
	}

	second, err := LoadIdentity(repoPath)
	if err != nil {
		t.Fatal(err)
	}
	if second.ReplicaID != first.ReplicaID {
		t.Fatal("expected replica ID to be stable across loads")
	}
}

func TestSaveIdentityRoundTrips(t *testing.T) {
	repoPath := t.TempDir()

	first, err := LoadIdentity(repoPath)
	if err != nil {
		t.Fatal(err)
	}

	want := &Identity{
		ReplicaID:  first.ReplicaID,
		UserID:     uuid.New(),
		FSID:       uuid.New(),
		UserName:   "alice",
		FSName:     "notes",
		ServerAddr: "https://coordinator.example.com",
	}
	if err := SaveIdentity(repoPath, want); err != nil {
		t.Fatal(err)
	}

	got, err := LoadIdentity(repoPath)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRepoConfigPathIsUnderCrfsDir(t *testing.T) {
	repoPath := t.TempDir()
	want := filepath.Join(repoPath, ".crfs", "config", "config.toml")
	if got := repoConfigPath(repoPath); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
