package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/infra/persistence/sqlite"
	"cloudmock/pkg/domain"
	"cloudmock/testutil"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := sqlite.NewStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	testutil.RunStoreContract(t, func(t *testing.T) domain.Store { return newStore(t) })
}

func TestSQLiteStoreRehydratesFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := sqlite.NewStore(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", store.Driver())
	assert.Equal(t, path, store.Path())

	nb, err := store.Add(ctx, domain.TableNodeBalancers, domain.Record{Data: json.RawMessage(`{"label":"nb-1"}`)})
	require.NoError(t, err)
	_, err = store.Add(ctx, domain.TableNodeBalancerConfigs, domain.Record{ParentID: nb.ID, Data: json.RawMessage(`{"port":443}`)})
	require.NoError(t, err)
	_, err = store.Update(ctx, domain.TableNodeBalancers, nb.ID, json.RawMessage(`{"label":"nb-renamed"}`))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.NewStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, ok, err := reopened.Get(ctx, domain.TableNodeBalancers, nb.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":1,"label":"nb-renamed"}`, string(got.Data))

	configs, err := reopened.GetAll(ctx, domain.TableNodeBalancerConfigs)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, nb.ID, configs[0].ParentID)

	next, err := reopened.Add(ctx, domain.TableNodeBalancers, domain.Record{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, next.ID)
}

func TestSQLiteStoreResetClearsDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := sqlite.NewStore(ctx, path)
	require.NoError(t, err)
	_, err = store.Add(ctx, domain.TableVolumes, domain.Record{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))
	require.NoError(t, store.Close())

	reopened, err := sqlite.NewStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	rows, err := reopened.GetAll(ctx, domain.TableVolumes)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var count int
	require.NoError(t, reopened.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM state`).Scan(&count))
	assert.Zero(t, count)
}
