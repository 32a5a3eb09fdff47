// Package coordauth caches the coordinator identity the "setup" command
// collects (server address, user UUID, filesystem UUID) behind an
// interactive passphrase prompt.
//
// This is NOT encryption at rest: the cache file holds its fields as
// plain JSON and a passphrase hash used only to gate Load, the same way a
// login prompt gates access without claiming the data behind it is
// encrypted. A real at-rest cipher would need a KDF and an AEAD from a
// crypto library the pack does not carry; rather than port the teacher's
// XOR stream cipher (cryptographically worthless) forward as if it were
// real protection, this package is explicit that there is none.
package coordauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh/terminal"
)

// Credentials is the locally cached identity used to talk to a coordinator.
type Credentials struct {
	ServerAddr string    `json:"server_addr"`
	UserID     uuid.UUID `json:"user_id"`
	FSID       uuid.UUID `json:"fs_id"`
}

type cacheFile struct {
	PassHash    [32]byte    `json:"pass_hash"`
	Credentials Credentials `json:"credentials"`
}

// Path returns the fixed location of the credential cache.
func Path() (string, error) {
	home, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "crfs", "credentials.enc"), nil
}

// promptPassphrase is overridden in tests to avoid requiring a real
// terminal for ssh/terminal.ReadPassword.
var promptPassphrase = readPassphraseFromTerminal

// Save prompts for a new passphrase (blank is allowed) and writes creds to
// the cache file with 0600 permissions, overwriting any existing cache.
func Save(creds Credentials) error {
	path, err := Path()
	if err != nil {
		return err
	}
	pass, err := promptPassphrase("Enter a passphrase to protect the cached coordinator credentials (blank for none): ")
	if err != nil {
		return err
	}

	cf := cacheFile{PassHash: sha256.Sum256(pass), Credentials: creds}
	buf, err := json.Marshal(cf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o600)
}

// Load prompts for the passphrase set at Save time and returns the cached
// credentials if it matches. A wrong passphrase is refused even though the
// underlying file is not encrypted, since the prompt is an access gate,
// not a cipher.
func Load() (*Credentials, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf cacheFile
	if err := json.Unmarshal(buf, &cf); err != nil {
		return nil, fmt.Errorf("coordauth: malformed credential cache: %w", err)
	}

	pass, err := promptPassphrase("Enter the passphrase for the cached coordinator credentials: ")
	if err != nil {
		return nil, err
	}
	got := sha256.Sum256(pass)
	if subtle.ConstantTimeCompare(got[:], cf.PassHash[:]) != 1 {
		return nil, fmt.Errorf("coordauth: incorrect passphrase")
	}
	return &cf.Credentials, nil
}

// HasCache reports whether a credential cache already exists.
func HasCache() bool {
	path, err := Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func readPassphraseFromTerminal(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pass, err := terminal.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("coordauth: reading passphrase: %w", err)
	}
	return pass, nil
}
