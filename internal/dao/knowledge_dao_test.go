package dao_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/dao"
	"sentra/internal/database"
	"sentra/internal/models"
	"sentra/pkg/ids"
)

func openTestStore(t *testing.T) (dao.KnowledgeDAO, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.db")
	db, err := database.Open(path)
	require.NoError(t, err)

	return dao.NewKnowledgeDAO(db, dao.Options{StorePath: path}), path
}

func hostEntity(t *testing.T, ip string, confidence float64, tags []interface{}) models.Entity {
	t.Helper()

	entity := models.Entity{
		ID:           ids.Host(ip),
		Kind:         ids.KindHost,
		Status:       models.StatusDiscovered,
		DiscoveredBy: "test",
		CreatedAt:    time.Now().UnixMilli(),
		UpdatedAt:    time.Now().UnixMilli(),
		Confidence:   confidence,
	}
	data := map[string]interface{}{"ip_address": ip, "is_alive": true}
	if tags != nil {
		data["tags"] = tags
	}
	require.NoError(t, entity.SetData(data))
	return entity
}

func TestUpsertInsertAndQuery(t *testing.T) {
	store, _ := openTestStore(t)

	count, err := store.UpsertEntities(dao.Batch{
		Entities: []models.Entity{hostEntity(t, "192.168.1.1", 1.0, nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entity, err := store.GetEntity("host_192_168_1_1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, ids.KindHost, entity.Kind)

	hosts, err := store.EntitiesByKind(ids.KindHost)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestUpsertRejectsInvalidID(t *testing.T) {
	store, _ := openTestStore(t)

	bad := hostEntity(t, "192.168.1.1", 1.0, nil)
	bad.ID = "host_192_168_1_1_RANDOM-Junk"

	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{bad}})
	assert.Error(t, err)

	// nothing committed
	entity, err := store.GetEntity(bad.ID)
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestMergeRules(t *testing.T) {
	store, _ := openTestStore(t)

	first := hostEntity(t, "10.0.0.5", 0.9, []interface{}{"linux"})
	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{first}})
	require.NoError(t, err)

	// lower confidence must not clobber scalar fields
	weaker := hostEntity(t, "10.0.0.5", 0.3, []interface{}{"web"})
	require.NoError(t, weaker.SetData(map[string]interface{}{
		"ip_address": "10.0.0.5",
		"is_alive":   false,
		"tags":       []interface{}{"web"},
	}))
	weaker.UpdatedAt = first.UpdatedAt - 1000

	_, err = store.UpsertEntities(dao.Batch{Entities: []models.Entity{weaker}})
	require.NoError(t, err)

	merged, err := store.GetEntity("host_10_0_0_5")
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, 0.9, merged.Confidence)

	data, err := merged.DataMap()
	require.NoError(t, err)
	assert.Equal(t, true, data["is_alive"], "lower-confidence writer must not win scalars")

	// set-valued tags are unioned regardless of confidence
	tags, ok := data["tags"].([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"linux", "web"}, tags)

	// higher confidence wins
	stronger := hostEntity(t, "10.0.0.5", 1.0, nil)
	require.NoError(t, stronger.SetData(map[string]interface{}{
		"ip_address": "10.0.0.5",
		"is_alive":   false,
	}))
	stronger.UpdatedAt = first.UpdatedAt + 1000

	_, err = store.UpsertEntities(dao.Batch{Entities: []models.Entity{stronger}})
	require.NoError(t, err)

	merged, err = store.GetEntity("host_10_0_0_5")
	require.NoError(t, err)
	data, err = merged.DataMap()
	require.NoError(t, err)
	assert.Equal(t, false, data["is_alive"])
	assert.Equal(t, 1.0, merged.Confidence)
}

func TestOrphanRelationshipRollsBack(t *testing.T) {
	store, _ := openTestStore(t)

	host := hostEntity(t, "10.0.0.7", 1.0, nil)
	_, err := store.UpsertEntities(dao.Batch{
		Entities: []models.Entity{host},
		Relationships: []models.EntityRelationship{
			{ParentID: host.ID, ChildID: "host_10_0_0_99", Type: ids.RelHasPort},
		},
	})
	assert.Error(t, err)

	// the whole batch rolled back, including the valid entity
	entity, err := store.GetEntity(host.ID)
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestRelationshipTraversal(t *testing.T) {
	store, _ := openTestStore(t)

	host := hostEntity(t, "10.0.0.8", 1.0, nil)

	port := models.Entity{
		ID:         ids.Port("10.0.0.8", 22, "tcp"),
		Kind:       ids.KindPort,
		Status:     models.StatusDiscovered,
		CreatedAt:  time.Now().UnixMilli(),
		UpdatedAt:  time.Now().UnixMilli(),
		Confidence: 1.0,
	}
	require.NoError(t, port.SetData(map[string]interface{}{
		"host_id": host.ID, "port": 22, "protocol": "tcp", "state": "open",
	}))

	_, err := store.UpsertEntities(dao.Batch{
		Entities: []models.Entity{host, port},
		Relationships: []models.EntityRelationship{
			{ParentID: host.ID, ChildID: port.ID, Type: ids.RelHasPort},
		},
	})
	require.NoError(t, err)

	children, err := store.Children(host.ID, ids.RelHasPort)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, port.ID, children[0].ID)

	// re-inserting the same relationship is a no-op, not an error
	_, err = store.UpsertEntities(dao.Batch{
		Relationships: []models.EntityRelationship{
			{ParentID: host.ID, ChildID: port.ID, Type: ids.RelHasPort},
		},
	})
	require.NoError(t, err)
}

func TestExecutionHistory(t *testing.T) {
	store, _ := openTestStore(t)

	now := time.Now().UnixMilli()
	failed := &models.ToolExecution{
		ExecutionID: "11111111-1111-1111-1111-111111111111",
		ToolID:      "nmap_port_scan",
		Target:      "10.0.0.9",
		Status:      models.ExecutionPartial,
		ParseStatus: models.ParseFailed,
		StartedAt:   now - 5000,
		CompletedAt: now - 4000,
	}
	require.NoError(t, store.RecordExecution(failed))

	executed, err := store.HasToolExecuted("nmap_port_scan", "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, executed)

	parsed, err := store.HasSuccessfulParse("nmap_port_scan", "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, parsed, "parse failure must not count as a successful parse")

	success := &models.ToolExecution{
		ExecutionID:     "22222222-2222-2222-2222-222222222222",
		ToolID:          "nmap_port_scan",
		Target:          "10.0.0.9",
		Status:          models.ExecutionSuccess,
		ParseStatus:     models.ParseParsed,
		StartedAt:       now - 2000,
		CompletedAt:     now - 1000,
		EntitiesCreated: 4,
	}
	require.NoError(t, store.RecordExecution(success))

	parsed, err = store.HasSuccessfulParse("nmap_port_scan", "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, parsed)

	last, err := store.LastExecution("nmap_port_scan", "10.0.0.9")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, success.ExecutionID, last.ExecutionID)

	// different target: untouched
	parsed, err = store.HasSuccessfulParse("nmap_port_scan", "10.0.0.10")
	require.NoError(t, err)
	assert.False(t, parsed)
}

func TestPrune(t *testing.T) {
	store, _ := openTestStore(t)

	stale := hostEntity(t, "10.0.1.1", 1.0, nil)
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour).UnixMilli()
	fresh := hostEntity(t, "10.0.1.2", 1.0, nil)

	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{stale, fresh}})
	require.NoError(t, err)

	deleted, err := store.Prune(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := store.GetEntity(stale.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := store.GetEntity(fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestCheckpointRestore(t *testing.T) {
	store, path := openTestStore(t)

	host := hostEntity(t, "10.0.2.1", 1.0, nil)
	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{host}})
	require.NoError(t, err)

	checkpoint := filepath.Join(filepath.Dir(path), "checkpoint.db")
	require.NoError(t, store.Checkpoint(checkpoint))

	// mutate after the checkpoint
	second := hostEntity(t, "10.0.2.2", 1.0, nil)
	_, err = store.UpsertEntities(dao.Batch{Entities: []models.Entity{second}})
	require.NoError(t, err)

	require.NoError(t, store.Restore(checkpoint))

	restored, err := store.GetEntity(host.ID)
	require.NoError(t, err)
	assert.NotNil(t, restored, "checkpointed entity must survive restore")

	gone, err := store.GetEntity(second.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "post-checkpoint entity must vanish after restore")
}
