package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/pkg/domain"
)

// StoreFactory returns a fresh, empty store for one subtest.
type StoreFactory func(t *testing.T) domain.Store

// RunStoreContract exercises the behaviour every domain.Store backend shares.
func RunStoreContract(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("AddThenGetRoundTrips", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		added, err := store.Add(ctx, domain.TableVolumes, domain.Record{Data: json.RawMessage(`{"label":"vol-1","size":20}`)})
		require.NoError(t, err)
		require.Positive(t, added.ID)

		got, ok, err := store.Get(ctx, domain.TableVolumes, added.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, added.ID, got.ID)
		assert.JSONEq(t, string(added.Data), string(got.Data))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(got.Data, &decoded))
		assert.EqualValues(t, added.ID, decoded["id"])
	})

	t.Run("GetAbsentIsNotAnError", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, ok, err := store.Get(ctx, domain.TableLinodes, 404)
		require.NoError(t, err)
		assert.False(t, ok)
		rows, err := store.GetAll(ctx, domain.TableLinodes)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("GetAllPreservesInsertionOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		labels := []string{"c", "a", "b"}
		for _, label := range labels {
			_, err := store.Add(ctx, domain.TableDomains, domain.Record{Data: mustJSON(t, map[string]string{"domain": label})})
			require.NoError(t, err)
		}
		rows, err := store.GetAll(ctx, domain.TableDomains)
		require.NoError(t, err)
		require.Len(t, rows, len(labels))
		for i, row := range rows {
			var d struct {
				Domain string `json:"domain"`
			}
			require.NoError(t, json.Unmarshal(row.Data, &d))
			assert.Equal(t, labels[i], d.Domain)
		}
	})

	t.Run("IDsAreNeverReused", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		first, err := store.Add(ctx, domain.TableFirewalls, domain.Record{Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, domain.TableFirewalls, first.ID))
		second, err := store.Add(ctx, domain.TableFirewalls, domain.Record{Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		collide, err := store.Add(ctx, domain.TableFirewalls, domain.Record{ID: second.ID, Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		assert.NotEqual(t, second.ID, collide.ID)
	})

	t.Run("SuppliedIDIsHonouredWhenFresh", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec, err := store.Add(ctx, domain.TableQuotas, domain.Record{Data: json.RawMessage(`{"id":42}`)})
		require.NoError(t, err)
		assert.Equal(t, 42, rec.ID)
		next, err := store.Add(ctx, domain.TableQuotas, domain.Record{Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		assert.Greater(t, next.ID, 42)
	})

	t.Run("UpdateMergesPatch", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec, err := store.Add(ctx, domain.TableVolumes, domain.Record{Data: json.RawMessage(`{"label":"v","size":10,"linode_id":7}`)})
		require.NoError(t, err)
		updated, err := store.Update(ctx, domain.TableVolumes, rec.ID, json.RawMessage(`{"size":20,"linode_id":null,"id":999}`))
		require.NoError(t, err)
		assert.Equal(t, rec.ID, updated.ID)

		got, ok, err := store.Get(ctx, domain.TableVolumes, rec.ID)
		require.NoError(t, err)
		require.True(t, ok)
		var vol domain.Volume
		require.NoError(t, json.Unmarshal(got.Data, &vol))
		assert.Equal(t, rec.ID, vol.ID)
		assert.Equal(t, "v", vol.Label)
		assert.Equal(t, 20, vol.Size)
		assert.Nil(t, vol.LinodeID)
	})

	t.Run("UpdateAbsentIsNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Update(context.Background(), domain.TableVolumes, 12, json.RawMessage(`{"size":1}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec, err := store.Add(ctx, domain.TableVPCs, domain.Record{Data: json.RawMessage(`{"label":"vpc"}`)})
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, domain.TableVPCs, rec.ID))
		require.NoError(t, store.Delete(ctx, domain.TableVPCs, rec.ID))
		require.NoError(t, store.Delete(ctx, domain.TableSubnets, 77))
		_, ok, err := store.Get(ctx, domain.TableVPCs, rec.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ChildRowsCarryParent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		parent, err := store.Add(ctx, domain.TableNodeBalancers, domain.Record{Data: json.RawMessage(`{"label":"nb"}`)})
		require.NoError(t, err)
		child, err := store.Add(ctx, domain.TableNodeBalancerConfigs, domain.Record{ParentID: parent.ID, Data: json.RawMessage(`{"port":80}`)})
		require.NoError(t, err)
		rows, err := store.GetAll(ctx, domain.TableNodeBalancerConfigs)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, parent.ID, rows[0].ParentID)
		assert.Equal(t, child.ID, rows[0].ID)
	})

	t.Run("ExportImportReset", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := store.Add(ctx, domain.TableLinodes, domain.Record{Data: json.RawMessage(`{"label":"l"}`)})
			require.NoError(t, err)
		}
		snap, err := store.Export(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Tables[domain.TableLinodes], 3)

		require.NoError(t, store.Reset(ctx))
		rows, err := store.GetAll(ctx, domain.TableLinodes)
		require.NoError(t, err)
		assert.Empty(t, rows)

		require.NoError(t, store.Import(ctx, snap))
		rows, err = store.GetAll(ctx, domain.TableLinodes)
		require.NoError(t, err)
		assert.Len(t, rows, 3)

		next, err := store.Add(ctx, domain.TableLinodes, domain.Record{Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		assert.Equal(t, 4, next.ID)
	})

	t.Run("RejectsNonObjectPayload", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Add(context.Background(), domain.TableLinodes, domain.Record{Data: json.RawMessage(`[1,2]`)})
		assert.Error(t, err)
	})
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
