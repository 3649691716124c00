package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/api/routes"
	"sentra/internal/dao"
	"sentra/internal/database"
	"sentra/internal/handlers"
	"sentra/internal/models"
	"sentra/internal/policy"
	"sentra/internal/services"
	"sentra/pkg/ids"
)

func testServer(t *testing.T) (*gin.Engine, dao.KnowledgeDAO) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "state.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	store := dao.NewKnowledgeDAO(db, dao.Options{StorePath: path})

	coordinator := services.NewCoordinator(services.Deps{Store: store})
	recommender := services.NewRecommender(store, policy.Default())

	return routes.NewRouter(handlers.New(store, coordinator, recommender)), store
}

func seedHost(t *testing.T, store dao.KnowledgeDAO, ip string) {
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
	_, err := store.UpsertEntities(dao.Batch{Entities: []models.Entity{entity}})
	require.NoError(t, err)
}

func TestListEntities(t *testing.T) {
	router, store := testServer(t)
	seedHost(t, store, "192.168.1.5")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/entities?kind=host", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "host_192_168_1_5")
}

func TestListEntitiesRejectsUnknownKind(t *testing.T) {
	router, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/entities?kind=gadget", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEntityNotFound(t *testing.T) {
	router, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/entities/host_10_9_9_9", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatus(t *testing.T) {
	router, store := testServer(t)
	seedHost(t, store, "192.168.1.6")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entities_host")
}

func TestResolveUnknownApproval(t *testing.T) {
	router, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/approvals/nope", nil)
	req.Header.Set("Content-Type", "application/json")
	req.Body = http.NoBody
	router.ServeHTTP(w, req)

	// missing body -> 400, unknown id with body -> 404; either way no 200
	assert.NotEqual(t, http.StatusOK, w.Code)
}
