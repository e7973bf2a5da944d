package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlab/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "vetlab.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func testSession(id, user string, started time.Time) *models.Session {
	return &models.Session{
		ID:            id,
		UserID:        user,
		ProcedureID:   "canine-ovariohysterectomy",
		ProcedureName: "Canine ovariohysterectomy",
		Category:      "soft_tissue",
		Status:        models.SessionActive,
		Grade:         "F",
		StartedAt:     started,
		UpdatedAt:     started,
	}
}

func TestClient_SessionRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	started := time.UnixMilli(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC).UnixMilli())

	require.NoError(t, c.CreateSession(ctx, testSession("s1", "u1", started)))

	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, models.SessionActive, got.Status)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Nil(t, got.CompletedAt)

	_, err = c.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_RecordDecision(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	s := testSession("s1", "u1", now)
	require.NoError(t, c.CreateSession(ctx, s))

	s.SafetyScore = 0
	s.DecisionMaking = 0
	s.DecisionCount = 1
	s.ComplicationCount = 1
	s.CurrentStep = 3
	record := &models.DecisionRecord{
		SessionID:   "s1",
		Sequence:    1,
		StepIndex:   0,
		OptionIndex: 1,
		TimeSpentMS: 30000,
		NextStep:    3,
		ImpactJSON:  `{"safety_score":-30}`,
		AppliedJSON: `{"safety_score":-20}`,
		CreatedAt:   now,
	}
	comps := []models.Complication{{
		SessionID:            "s1",
		Sequence:             1,
		Type:                 "major_bleeding",
		Description:          "bleeding",
		InterventionRequired: true,
		RecoverySeconds:      600,
		CreatedAt:            now,
	}}
	require.NoError(t, c.RecordDecision(ctx, s, record, comps))

	records, err := c.ListDecisions(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].OptionIndex)
	assert.Equal(t, int64(30000), records[0].TimeSpentMS)
	assert.False(t, records[0].IsCorrect)
	assert.Equal(t, `{"safety_score":-30}`, records[0].ImpactJSON)

	stored, err := c.ListComplications(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].InterventionRequired)
	assert.Equal(t, 600, stored[0].RecoverySeconds)

	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStep)
	assert.Equal(t, 1, got.ComplicationCount)
}

func TestClient_RecordDecisionIsAtomic(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	s := testSession("s1", "u1", now)
	require.NoError(t, c.CreateSession(ctx, s))

	record := &models.DecisionRecord{SessionID: "s1", Sequence: 1, CreatedAt: now}
	require.NoError(t, c.RecordDecision(ctx, s, record, nil))

	// Same sequence again violates the unique constraint; the session update must roll back.
	s.DecisionCount = 99
	err := c.RecordDecision(ctx, s, record, nil)
	require.Error(t, err)

	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.DecisionCount)

	records, err := c.ListDecisions(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClient_UpdateAndListByUser(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, c.CreateSession(ctx, testSession("late", "u1", base.Add(2*time.Hour))))
	require.NoError(t, c.CreateSession(ctx, testSession("early", "u1", base)))
	require.NoError(t, c.CreateSession(ctx, testSession("other", "u2", base)))

	done := base.Add(3 * time.Hour)
	s := testSession("early", "u1", base)
	s.Status = models.SessionCompleted
	s.OverallScore = 72.5
	s.Grade = "C"
	s.CompletedAt = &done
	require.NoError(t, c.UpdateSession(ctx, s))

	sessions, err := c.ListSessionsByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "early", sessions[0].ID)
	assert.Equal(t, models.SessionCompleted, sessions[0].Status)
	assert.Equal(t, 72.5, sessions[0].OverallScore)
	require.NotNil(t, sessions[0].CompletedAt)
	assert.True(t, done.Equal(*sessions[0].CompletedAt))
	assert.Equal(t, "late", sessions[1].ID)

	limited, err := c.ListSessionsByUser(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	err = c.UpdateSession(ctx, testSession("missing", "u1", base))
	assert.True(t, errors.Is(err, ErrNotFound))
}
