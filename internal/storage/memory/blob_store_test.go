package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "evidence/m1/abc.png", "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	require.Equal(t, "memory://evidence/m1/abc.png", uri)

	got, ok := store.Object("evidence/m1/abc.png")
	require.True(t, ok)
	require.Equal(t, []byte("png"), got)

	_, ok = store.Object("missing")
	require.False(t, ok)

	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}
