package coordauth

import (
	"testing"

	"github.com/google/uuid"
)

func withFakeHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
}

func withPassphrase(t *testing.T, pass string) {
	t.Helper()
	orig := promptPassphrase
	promptPassphrase = func(prompt string) ([]byte, error) {
		return []byte(pass), nil
	}
	t.Cleanup(func() { promptPassphrase = orig })
}

func TestSaveAndLoadRoundTripsWithCorrectPassphrase(t *testing.T) {
	withFakeHome(t)
	withPassphrase(t, "correct horse battery staple")

	creds := Credentials{ServerAddr: "example.org:9001", UserID: uuid.New(), FSID: uuid.New()}
	if err := Save(creds); err != nil {
		t.Fatal(err)
	}
	if !HasCache() {
		t.Fatal("expected HasCache to report true after Save")
	}

	got, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if *got != creds {
		t.Fatalf("expected loaded credentials to match, got %+v, want %+v", got, creds)
	}
}

func TestLoadRejectsWrongPassphrase(t *testing.T) {
	withFakeHome(t)
	withPassphrase(t, "right passphrase")

	if err := Save(Credentials{ServerAddr: "example.org:9001"}); err != nil {
		t.Fatal(err)
	}

	withPassphrase(t, "wrong passphrase")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a wrong passphrase")
	}
}

func TestHasCacheFalseWhenNoCacheExists(t *testing.T) {
	withFakeHome(t)
	if HasCache() {
		t.Fatal("expected HasCache to report false for a fresh home directory")
	}
}
