package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JostBaron/fal-database/internal/common"
)

func TestHash(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	content := []byte("hash me")

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)
	require.NoError(t, d.ReplaceFile(ctx, id, content))

	expected := sha256.Sum256(content)
	got, err := d.Hash(ctx, id, "sha256")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(expected[:]), got)

	// Deterministic across calls.
	again, err := d.Hash(ctx, id, "sha256")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestHashAlgorithms(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)

	expectedLengths := map[string]int{
		"md5":    32,
		"sha1":   40,
		"sha256": 64,
		"sha512": 128,
		"xxh64":  16,
	}
	for algorithm, length := range expectedLengths {
		digest, err := d.Hash(ctx, id, algorithm)
		require.NoError(t, err, algorithm)
		assert.Len(t, digest, length, algorithm)
	}
}

func TestHashErrors(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.CreateFile(ctx, "a.txt", "/")
	require.NoError(t, err)

	// Unsupported algorithm fails before any row is read.
	_, err = d.Hash(ctx, id, "crc32")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	_, err = d.Hash(ctx, "/missing.txt", "crc32")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = d.Hash(ctx, "/missing.txt", "sha256")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
