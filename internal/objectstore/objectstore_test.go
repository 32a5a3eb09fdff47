package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crfs/internal/driverid"
	"crfs/internal/filetree"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".crfs")
	return New(root)
}

func TestWriteReadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Write([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, s.HasOp(h), "expected stored object to be found")

	b, err := s.ReadOp(h)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestWriteIsContentAddressed(t *testing.T) {
	s := newTestStore(t)
	h1, err := s.Write([]byte("same"))
	require.NoError(t, err)
	h2, err := s.Write([]byte("same"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "expected identical content to hash to the same object")
}

func TestObjectPathIsSharded(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Write([]byte("shard me"))
	require.NoError(t, err)

	hex := h.String()
	want := filepath.Join(s.root, objectsDir, hex[:2], hex[2:])
	_, err = os.Stat(want)
	assert.NoError(t, err, "expected object at sharded path %s", want)
}

func TestWriteOpAndReadOp(t *testing.T) {
	s := newTestStore(t)
	op := &filetree.FileOp{
		Kind:       filetree.OpNewFile,
		Subject:    driverid.Driver(1),
		DriverKind: filetree.DriverMarkdown,
		Path:       "a.md",
		Creator:    uuid.New(),
	}

	require.NoError(t, s.WriteOp(op))
	assert.True(t, s.HasOp(op.Hash()), "expected the op to be stored under its own hash")

	b, err := s.ReadOp(op.Hash())
	require.NoError(t, err)
	assert.NotEmpty(t, b, "expected non-empty serialized op")
}

func TestDeleteOpMovesToTrash(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Write([]byte("trash me"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteOp(h))
	assert.False(t, s.HasOp(h), "expected object to be gone from its original location")

	entries, err := os.ReadDir(filepath.Join(s.root, trashDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadMetaRoundTrips(t *testing.T) {
	s := newTestStore(t)
	want := snapshot{Name: "filetree", Count: 3}
	require.NoError(t, s.WriteMeta("filetree", &want))
	assert.True(t, s.HasMeta("filetree"), "expected meta snapshot to exist")

	var got snapshot
	require.NoError(t, s.ReadMeta("filetree", &got))
	assert.Equal(t, want, got)
}

func TestReadMetaMissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	var got snapshot
	assert.Error(t, s.ReadMeta("nonexistent", &got), "expected an error reading a missing snapshot")
}
