package secret

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
	_ "github.com/opsimate/opsimate-core/migrations" // registers schema
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: prod
  cluster:
    server: https://k8s.example.com:6443
contexts:
- name: prod
  context:
    cluster: prod
    user: admin
current-context: prod
users:
- name: admin
  user:
    token: abc
`

func sshKey(t *testing.T, passphrase string) []byte {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)
	return pem.EncodeToMemory(block)
}

func setupStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "secrets.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, database.Migrate(ctx, db))

	return NewStore(db, filepath.Join(t.TempDir(), "keys"), nil)
}

func TestValidate(t *testing.T) {
	key := sshKey(t, "")
	encrypted := sshKey(t, "hunter2")

	assert.NoError(t, Validate(TypeSSH, key))
	assert.NoError(t, Validate(TypeSSH, encrypted), "passphrase-protected keys are accepted")
	assert.ErrorIs(t, Validate(TypeSSH, []byte("ssh-ed25519 AAAA public-key")), ErrInvalidContent)

	assert.NoError(t, Validate(TypeKubeconfig, []byte(testKubeconfig)))
	assert.ErrorIs(t, Validate(TypeKubeconfig, []byte("kind: Pod\n")), ErrInvalidContent)
	assert.ErrorIs(t, Validate(TypeKubeconfig, []byte("kind: Config\nclusters: []\n")), ErrInvalidContent)
	assert.ErrorIs(t, Validate(TypeKubeconfig, []byte("kind: Config\nclusters:\n- name: x\n  cluster: {}\n")), ErrInvalidContent)
	assert.ErrorIs(t, Validate(TypeKubeconfig, []byte("{not yaml")), ErrInvalidContent)

	assert.ErrorIs(t, Validate("pgp", key), ErrInvalidType)
}

func TestDetectType(t *testing.T) {
	typ, err := DetectType(sshKey(t, ""))
	require.NoError(t, err)
	assert.Equal(t, TypeSSH, typ)

	typ, err = DetectType([]byte(testKubeconfig))
	require.NoError(t, err)
	assert.Equal(t, TypeKubeconfig, typ)

	_, err = DetectType([]byte("hello"))
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestCleanFileName(t *testing.T) {
	for _, good := range []string{"id_ed25519", "prod.kubeconfig", " key.pem "} {
		_, err := CleanFileName(good)
		assert.NoError(t, err, good)
	}
	for _, bad := range []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`, ".hidden"} {
		_, err := CleanFileName(bad)
		assert.ErrorIs(t, err, ErrInvalidFileName, bad)
	}
}

func TestStore_CreateWritesRestrictedFile(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	key := sshKey(t, "")

	sec, err := store.Create(ctx, Input{Name: "Prod key", FileName: "prod_key", Content: key})
	require.NoError(t, err)
	assert.Positive(t, sec.ID)
	assert.Equal(t, TypeSSH, sec.Type, "type is detected")

	data, err := os.ReadFile(store.Path(sec))
	require.NoError(t, err)
	assert.Equal(t, key, data)

	info, err := os.Stat(store.Path(sec))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePermissions), info.Mode().Perm())

	dirInfo, err := os.Stat(store.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(dirPermissions), dirInfo.Mode().Perm())
}

func TestStore_CreateRejectsDuplicatesAndBadInput(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Input{FileName: "kube", Type: TypeKubeconfig, Content: []byte(testKubeconfig)})
	require.NoError(t, err)

	_, err = store.Create(ctx, Input{FileName: "kube", Type: TypeKubeconfig, Content: []byte(testKubeconfig)})
	assert.ErrorIs(t, err, ErrExists)

	_, err = store.Create(ctx, Input{FileName: "../escape", Content: sshKey(t, "")})
	assert.ErrorIs(t, err, ErrInvalidFileName)

	_, err = store.Create(ctx, Input{FileName: "wrong", Type: TypeSSH, Content: []byte(testKubeconfig)})
	assert.ErrorIs(t, err, ErrInvalidContent)
	assert.NoFileExists(t, filepath.Join(store.Dir(), "wrong"))

	secrets, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, secrets, 1)
}

func TestStore_ListGetDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	ssh1, err := store.Create(ctx, Input{FileName: "a", Content: sshKey(t, "")})
	require.NoError(t, err)
	kube, err := store.Create(ctx, Input{FileName: "b", Content: []byte(testKubeconfig)})
	require.NoError(t, err)
	assert.Equal(t, "b", kube.Name, "name defaults to file name")

	onlyKube, err := store.List(ctx, TypeKubeconfig)
	require.NoError(t, err)
	require.Len(t, onlyKube, 1)
	assert.Equal(t, kube.ID, onlyKube[0].ID)

	got, err := store.Get(ctx, ssh1.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.FileName)

	deleted, err := store.Delete(ctx, ssh1.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", deleted.FileName)
	assert.NoFileExists(t, store.Path(deleted))

	_, err = store.Get(ctx, ssh1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Delete(ctx, ssh1.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A file removed out of band does not block deleting the record.
	require.NoError(t, os.Remove(store.Path(kube)))
	_, err = store.Delete(ctx, kube.ID)
	assert.NoError(t, err)
}
