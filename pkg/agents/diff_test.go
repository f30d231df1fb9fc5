package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffVersions(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(WithBaseDir(t.TempDir()))
	require.NoError(t, err)

	_, err = store.Create(ctx, "support", CreateRequest{
		Instructions: "Help {{user}} with billing.",
		Model:        "gpt-test",
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "support", WithInstructions("Help {{user}} with billing and refunds."))
	require.NoError(t, err)

	diff, err := store.DiffVersions(ctx, "support", "1.0.0", "1.0.1")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- support@1.0.0")
	assert.Contains(t, diff, "+++ support@1.0.1")
	assert.Contains(t, diff, "-Help {{user}} with billing.")
	assert.Contains(t, diff, "+Help {{user}} with billing and refunds.")
}

func TestDiffVersionsIdenticalInstructions(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(WithBaseDir(t.TempDir()))
	require.NoError(t, err)

	_, err = store.Create(ctx, "support", CreateRequest{
		Instructions: "Same text.",
		Model:        "gpt-test",
	})
	require.NoError(t, err)

	// A model change bumps the version but leaves instructions alone.
	_, err = store.Update(ctx, "support", WithModel("gpt-next"))
	require.NoError(t, err)

	diff, err := store.DiffVersions(ctx, "support", "1.0.0", "latest")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestDiffVersionsMissingVersion(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(WithBaseDir(t.TempDir()))
	require.NoError(t, err)

	_, err = store.Create(ctx, "support", CreateRequest{Instructions: "x", Model: "m"})
	require.NoError(t, err)

	_, err = store.DiffVersions(ctx, "support", "1.0.0", "9.9.9")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}
