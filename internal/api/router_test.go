package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlab/backend/internal/cache/lru"
	"github.com/vetlab/backend/internal/catalog"
	"github.com/vetlab/backend/internal/dashboard"
	"github.com/vetlab/backend/internal/decision"
	"github.com/vetlab/backend/internal/procedure"
	"github.com/vetlab/backend/internal/session"
	"github.com/vetlab/backend/internal/storage/sqlite"
	"github.com/vetlab/backend/pkg/retry"
)

func testProcedure() *procedure.Procedure {
	return &procedure.Procedure{
		ID:       "canine-dental-extraction",
		Name:     "Canine dental extraction",
		Category: "dentistry",
		Sources:  []string{"Verstraete, Oral and Maxillofacial Surgery"},
		Steps: []procedure.Step{
			{
				Title:            "Elevate the tooth",
				ExpectedDuration: 60,
				Decision: &procedure.DecisionPoint{
					Question: "Which elevator movement?",
					Options: []procedure.Option{
						{Text: "Sustained rotational pressure", IsCorrect: true},
						{Text: "Levering against the adjacent tooth", Severity: procedure.SeverityCritical},
					},
				},
			},
			{Title: "Close the gingival flap", ExpectedDuration: 60},
			{Title: "Manage haemorrhage", ExpectedDuration: 120, IsEmergency: true},
		},
	}
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "vetlab.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	cat := catalog.New("")
	require.NoError(t, cat.Put(testProcedure()))

	agg := dashboard.NewAggregator(db, lru.New[string, *dashboard.UserStats](10, time.Minute))
	cfg := decision.DefaultEngineConfig()
	cfg.Locale = "en"
	manager := session.NewManager(db, cat, cfg,
		session.WithInvalidator(agg),
		session.WithRetry(retry.Config{MaxAttempts: 1}),
	)

	app := fiber.New()
	Register(app, Deps{Catalog: cat, Sessions: manager, Dashboard: agg})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestSessionLifecycle(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/v1/sessions", `{"user_id":"trainee-7","procedure_id":"canine-dental-extraction"}`)
	require.Equal(t, fiber.StatusCreated, status)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	status, body = do(t, app, http.MethodPost, "/api/v1/sessions/"+id+"/decisions", `{"step":0,"option":1,"time_spent_seconds":20}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["is_correct"])
	assert.Equal(t, float64(2), body["next_step"])
	comps, _ := body["complications"].([]interface{})
	require.Len(t, comps, 1)
	feedback, _ := body["feedback"].(map[string]interface{})
	assert.Contains(t, feedback["primary"], "Critical error!")

	status, body = do(t, app, http.MethodPost, "/api/v1/sessions/"+id+"/decisions", `{"step":1,"option":0,"time_spent_seconds":5}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, float64(1), body["step"])

	status, _ = do(t, app, http.MethodPost, "/api/v1/sessions/"+id+"/advance", `{"step":2,"time_spent_seconds":100}`)
	require.Equal(t, fiber.StatusOK, status)

	status, body = do(t, app, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, fiber.StatusOK, status)
	snap, _ := body["snapshot"].(map[string]interface{})
	assert.Equal(t, true, snap["finished"])

	status, body = do(t, app, http.MethodPost, "/api/v1/sessions/"+id+"/complete", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", body["status"])

	status, _ = do(t, app, http.MethodPost, "/api/v1/sessions/"+id+"/complete", "")
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = do(t, app, http.MethodGet, "/api/v1/dashboard/trainee-7", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["completed_sessions"])
	assert.Equal(t, "insufficient_data", body["trend"])
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, http.MethodGet, "/api/v1/sessions/does-not-exist", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, app, http.MethodPost, "/api/v1/sessions", `{"user_id":"u","procedure_id":"unknown"}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, app, http.MethodGet, "/api/v1/procedures/unknown", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestProceduresHideAnswers(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodGet, "/api/v1/procedures", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/procedures/canine-dental-extraction", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(raw), "Sustained rotational pressure")
	assert.NotContains(t, string(raw), "is_correct")
	assert.NotContains(t, string(raw), "severity")
}

func TestHealthAndReady(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = do(t, app, http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["procedures"])

	status, _ = do(t, app, http.MethodGet, "/api/v1/ws", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}
