// Package config loads and saves the engine's TOML-backed configuration:
// a machine-wide file at ~/.config/crfs/config.toml (written by
// SetGlobalConfigValue) and a per-working-directory file at
// .crfs/config/config.toml. Lookups (GetConfigValue, LoadIdentity) read
// only the per-working-directory file; the machine-wide file is not
// consulted as a fallback.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml"
)

func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	cfgDir := filepath.Join(home, ".config", "crfs")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "config.toml"), nil
}

func repoConfigPath(repoPath string) string {
	return filepath.Join(repoPath, ".crfs", "config", "config.toml")
}

func loadToml(path string) (*toml.Tree, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		tree, err := toml.TreeFromMap(map[string]interface{}{})
		if err != nil {
			return nil, fmt.Errorf("failed to create empty config: %w", err)
		}
		return tree, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return toml.LoadBytes(b)
}

func saveToml(tree *toml.Tree, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(tree.String()), 0o644)
}

// SetGlobalConfigValue sets key=val in ~/.config/crfs/config.toml.
func SetGlobalConfigValue(key, val string) error {
	gp, err := globalConfigPath()
	if err != nil {
		return err
	}
	tree, err := loadToml(gp)
	if err != nil {
		return err
	}
	tree.Set(key, val)
	return saveToml(tree, gp)
}

// SetRepoConfigValue sets key=val in .crfs/config/config.toml.
func SetRepoConfigValue(repoPath, key, val string) error {
	rp := repoConfigPath(repoPath)
	tree, err := loadToml(rp)
	if err != nil {
		return err
	}
	tree.Set(key, val)
	return saveToml(tree, rp)
}

// GetConfigValue retrieves a single dotted key from the repo config file.
func GetConfigValue(repoPath, key string) (string, error) {
	tree, err := loadToml(repoConfigPath(repoPath))
	if err != nil {
		return "", err
	}
	v, ok := tree.Get(key).(string)
	if !ok {
		return "", fmt.Errorf("no config value for %s", key)
	}
	return v, nil
}

// Identity holds the replica's identity within a coordinated filesystem:
// the local replica UUID (generated once and then stable across runs),
// and the user/FS/coordinator identity the setup command records.
//
// This mirrors original_source's networking::Config/ReplicaInfo nesting
// (replica -> fs -> user), flattened into dotted TOML keys since go-toml's
// Tree API is key-path based rather than struct-based.
type Identity struct {
	ReplicaID  uuid.UUID
	UserID     uuid.UUID
	FSID       uuid.UUID
	UserName   string
	FSName     string
	ServerAddr string
}

const (
	keyReplicaID  = "replica.id"
	keyUserID     = "server.user_id"
	keyFSID       = "server.fs_id"
	keyUserName   = "server.user_name"
	keyFSName     = "server.fs_name"
	keyServerAddr = "server.addr"
)

// LoadIdentity reads the repo config's identity fields, generating and
// persisting a fresh replica UUID the first time it's called for a given
// working directory. Any other field left unset comes back as the zero
// value (a nil UUID or an empty string).
func LoadIdentity(repoPath string) (*Identity, error) {
	path := repoConfigPath(repoPath)
	tree, err := loadToml(path)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:     parseUUID(tree, keyUserID),
		FSID:       parseUUID(tree, keyFSID),
		UserName:   getString(tree, keyUserName),
		FSName:     getString(tree, keyFSName),
		ServerAddr: getString(tree, keyServerAddr),
	}

	if raw, ok := tree.Get(keyReplicaID).(string); ok {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid %s: %w", keyReplicaID, err)
		}
		id.ReplicaID = parsed
	} else {
		id.ReplicaID = uuid.New()
		tree.Set(keyReplicaID, id.ReplicaID.String())
		if err := saveToml(tree, path); err != nil {
			return nil, err
		}
	}

	return id, nil
}

// SaveIdentity persists the server/user/fs identity fields set by the
// setup command, preserving the replica UUID and any other existing keys.
func SaveIdentity(repoPath string, id *Identity) error {
	path := repoConfigPath(repoPath)
	tree, err := loadToml(path)
	if err != nil {
		return err
	}

	tree.Set(keyReplicaID, id.ReplicaID.String())
	if id.UserID != uuid.Nil {
		tree.Set(keyUserID, id.UserID.String())
	}
	if id.FSID != uuid.Nil {
		tree.Set(keyFSID, id.FSID.String())
	}
	if id.UserName != "" {
		tree.Set(keyUserName, id.UserName)
	}
	if id.FSName != "" {
		tree.Set(keyFSName, id.FSName)
	}
	if id.ServerAddr != "" {
		tree.Set(keyServerAddr, id.ServerAddr)
	}

	return saveToml(tree, path)
}

func getString(tree *toml.Tree, key string) string {
	v, _ := tree.Get(key).(string)
	return v
}

func parseUUID(tree *toml.Tree, key string) uuid.UUID {
	raw, ok := tree.Get(key).(string)
	if !ok {
		return uuid.Nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
