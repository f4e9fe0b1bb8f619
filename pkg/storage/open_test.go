package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	lite, err := Open(ctx, BackendSQLite, ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, lite)
	require.NoError(t, lite.Close())

	_, err = Open(ctx, "mongo", "")
	assert.Error(t, err)
}
