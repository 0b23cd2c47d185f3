package boot

import (
	"context"
	"hallpass/src/config"
	"hallpass/src/db"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "t1", "email": "minho@school.test", "firstName": "Minho", "lastName": "Kim", "isTeacher": true},
		{"id": "s1", "email": "dana@school.test", "firstName": "Dana", "lastName": "Lee"},
		{"id": " ", "email": "ghost@school.test"}
	]`), 0o600))

	store := db.NewMemoryStore()
	count, err := SeedUsers(context.Background(), store, path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	teachers, err := store.ListTeachers(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, "t1", teachers[0].ID)

	_, err = SeedUsers(context.Background(), store, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestInitSigner(t *testing.T) {
	cfg := &config.Config{Env: "local"}
	signer, err := InitSigner(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, signer.Token("id", time.Now()))

	cfg.Env = "production"
	_, err = InitSigner(context.Background(), cfg)
	assert.Error(t, err)

	cfg.PassTokenSecret = []byte(strings.Repeat("s", 32))
	a, err := InitSigner(context.Background(), cfg)
	require.NoError(t, err)
	b, err := InitSigner(context.Background(), cfg)
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, a.Token("id", at), b.Token("id", at))
}
