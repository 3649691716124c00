package services_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/dao"
	"sentra/internal/database"
	"sentra/internal/intent"
	"sentra/internal/models"
	"sentra/internal/policy"
	"sentra/internal/services"
	"sentra/pkg/ids"
)

func openStore(t *testing.T) dao.KnowledgeDAO {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	return dao.NewKnowledgeDAO(db, dao.Options{StorePath: path})
}

func aliveHost(t *testing.T, ip string) models.Entity {
	t.Helper()
	entity := models.Entity{
		ID:         ids.Host(ip),
		Kind:       ids.KindHost,
		Status:     models.StatusDiscovered,
		CreatedAt:  time.Now().UnixMilli(),
		UpdatedAt:  time.Now().UnixMilli(),
		Confidence: 1.0,
	}
	require.NoError(t, entity.SetData(map[string]interface{}{"ip_address": ip, "is_alive": true}))
	return entity
}

func TestRecommenderSuggestsPortScanForUnscannedHost(t *testing.T) {
	store := openStore(t)
	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{aliveHost(t, "10.1.0.1")}})
	require.NoError(t, err)

	rec := services.NewRecommender(store, policy.Default())
	suggestions, err := rec.Suggest(5)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	assert.Equal(t, intent.PortScan, suggestions[0].Kind)
	assert.Equal(t, "10.1.0.1", suggestions[0].Target)
	assert.False(t, suggestions[0].NeedsApproval)
}

func TestRecommenderReQueuesAfterParseFailure(t *testing.T) {
	store := openStore(t)
	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{aliveHost(t, "10.1.0.2")}})
	require.NoError(t, err)

	// a failed parse run exists, so history says the step has not
	// succeeded yet and the planner should still propose it
	require.NoError(t, store.RecordExecution(&models.ToolExecution{
		ExecutionID: "33333333-3333-3333-3333-333333333333",
		ToolID:      "nmap_port_scan",
		Target:      "10.1.0.2",
		Status:      models.ExecutionPartial,
		ParseStatus: models.ParseFailed,
		StartedAt:   time.Now().UnixMilli(),
		CompletedAt: time.Now().UnixMilli(),
	}))

	rec := services.NewRecommender(store, policy.Default())
	suggestions, err := rec.Suggest(5)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, intent.PortScan, suggestions[0].Kind)
}

func TestRecommenderSuggestsWebEnumForOpenWebPort(t *testing.T) {
	store := openStore(t)

	host := aliveHost(t, "10.1.0.3")
	port := models.Entity{
		ID:         ids.Port("10.1.0.3", 80, "tcp"),
		Kind:       ids.KindPort,
		Status:     models.StatusDiscovered,
		CreatedAt:  time.Now().UnixMilli(),
		UpdatedAt:  time.Now().UnixMilli(),
		Confidence: 1.0,
	}
	require.NoError(t, port.SetData(map[string]interface{}{
		"host_id": host.ID, "port": 80, "protocol": "tcp", "state": "open",
	}))

	_, err := store.UpsertEntities(dao.Batch{
		Entities: []models.Entity{host, port},
		Relationships: []models.EntityRelationship{
			{ParentID: host.ID, ChildID: port.ID, Type: ids.RelHasPort},
		},
	})
	require.NoError(t, err)

	// port scan already parsed for this host
	require.NoError(t, store.RecordExecution(&models.ToolExecution{
		ExecutionID: "44444444-4444-4444-4444-444444444444",
		ToolID:      "nmap_port_scan",
		Target:      "10.1.0.3",
		Status:      models.ExecutionSuccess,
		ParseStatus: models.ParseParsed,
		StartedAt:   time.Now().UnixMilli(),
		CompletedAt: time.Now().UnixMilli(),
	}))

	rec := services.NewRecommender(store, policy.Default())
	suggestions, err := rec.Suggest(5)
	require.NoError(t, err)

	var sawWebEnum bool
	for _, s := range suggestions {
		if s.Kind == intent.WebDirEnum && s.Target == "http://10.1.0.3" {
			sawWebEnum = true
		}
	}
	assert.True(t, sawWebEnum, "open port 80 with no enumeration should suggest web_dir_enum, got %v", suggestions)
}

func TestRecommenderEmptyGraph(t *testing.T) {
	store := openStore(t)
	rec := services.NewRecommender(store, policy.Default())
	suggestions, err := rec.Suggest(5)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}
