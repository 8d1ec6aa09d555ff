// Package contenttest checks that a content.Store honors the interface
// contract. Each implementation runs it with its own factory.
package contenttest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"filevault/pkg/content"
)

// StoreTestSuite runs the contract tests against fresh stores.
type StoreTestSuite struct {
	NewStore func(t *testing.T) content.Store
}

// Run executes all contract tests.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("PutGet", suite.testPutGet)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("EmptyContent", suite.testEmptyContent)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("Delete", suite.testDelete)
	t.Run("Exists", suite.testExists)
	t.Run("InvalidKey", suite.testInvalidKey)
}

func mustRead(t *testing.T, store content.Store, key string) []byte {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func (suite *StoreTestSuite) testPutGet(t *testing.T) {
	store := suite.NewStore(t)
	data := bytes.Repeat([]byte("filevault "), 1024)

	require.NoError(t, store.Put(context.Background(), "files/2024/01/02/a", bytes.NewReader(data), int64(len(data)), "text/plain"))
	require.Equal(t, data, mustRead(t, store, "files/2024/01/02/a"))
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "files/k", strings.NewReader("first"), 5, ""))
	require.NoError(t, store.Put(ctx, "files/k", strings.NewReader("second"), 6, ""))
	require.Equal(t, "second", string(mustRead(t, store, "files/k")))
}

func (suite *StoreTestSuite) testEmptyContent(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.Put(context.Background(), "files/empty", bytes.NewReader(nil), 0, ""))
	require.Empty(t, mustRead(t, store, "files/empty"))
}

func (suite *StoreTestSuite) testGetMissing(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Get(context.Background(), "files/missing")
	require.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "files/d", strings.NewReader("bye"), 3, ""))
	require.NoError(t, store.Delete(ctx, "files/d"))

	_, err := store.Get(ctx, "files/d")
	require.ErrorIs(t, err, content.ErrContentNotFound)
	require.ErrorIs(t, store.Delete(ctx, "files/d"), content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testExists(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "files/e")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, "files/e", strings.NewReader("x"), 1, ""))
	ok, err = store.Exists(ctx, "files/e")
	require.NoError(t, err)
	require.True(t, ok)
}

func (suite *StoreTestSuite) testInvalidKey(t *testing.T) {
	store := suite.NewStore(t)

	err := store.Put(context.Background(), "../escape", strings.NewReader("x"), 1, "")
	require.ErrorIs(t, err, content.ErrInvalidKey)
}
