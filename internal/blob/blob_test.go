package blob_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/blob"
	"cloudmock/internal/infra/blob/s3"
)

func backends(t *testing.T) map[string]blob.Store {
	t.Helper()
	ctx := context.Background()
	mem, err := blob.Open(ctx, blob.Config{})
	require.NoError(t, err)
	fsStore, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()})
	require.NoError(t, err)
	return map[string]blob.Store{
		"memory": mem,
		"fs":     fsStore,
		"s3":     s3.NewMockForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := st.Put(ctx, "snapshots/a.json", strings.NewReader(`{"a":1}`), blob.PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"session": "s1"},
			})
			require.NoError(t, err)
			assert.Equal(t, "snapshots/a.json", info.Key)
			assert.EqualValues(t, 7, info.Size)

			_, err = st.Put(ctx, "snapshots/a.json", strings.NewReader("again"), blob.PutOptions{})
			assert.ErrorIs(t, err, blob.ErrExists)

			_, err = st.Put(ctx, "snapshots/b.json", strings.NewReader(`{}`), blob.PutOptions{})
			require.NoError(t, err)
			_, err = st.Put(ctx, "other/c.json", strings.NewReader(`{}`), blob.PutOptions{})
			require.NoError(t, err)

			got, rc, err := st.Get(ctx, "snapshots/a.json")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(body))
			assert.Equal(t, "application/json", got.ContentType)

			list, err := st.List(ctx, "snapshots/")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "snapshots/a.json", list[0].Key)
			assert.Equal(t, "snapshots/b.json", list[1].Key)

			existed, err := st.Delete(ctx, "snapshots/a.json")
			require.NoError(t, err)
			assert.True(t, existed)
			existed, err = st.Delete(ctx, "snapshots/a.json")
			require.NoError(t, err)
			assert.False(t, existed)

			_, _, err = st.Get(ctx, "snapshots/a.json")
			assert.ErrorIs(t, err, blob.ErrNotFound)
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := blob.Open(context.Background(), blob.Config{Driver: "tape"})
	assert.Error(t, err)
	_, err = blob.Open(context.Background(), blob.Config{Driver: blob.DriverS3})
	assert.Error(t, err, "bucket is required")
}
