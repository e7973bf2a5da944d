package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/decision"
	"github.com/vetlab/backend/internal/metrics"
	"github.com/vetlab/backend/internal/storage/models"
	"github.com/vetlab/backend/internal/storage/sqlite"
	"github.com/vetlab/backend/pkg/logger"
	"github.com/vetlab/backend/pkg/retry"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrProcedureNotFound = errors.New("procedure not found")
	ErrSessionCompleted  = errors.New("session already completed")
	ErrReplayDiverged    = errors.New("stored history no longer matches procedure")
)

// Store is the durable session history. The sqlite client implements it.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	RecordDecision(ctx context.Context, s *models.Session, record *models.DecisionRecord, complications []models.Complication) error
	UpdateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListDecisions(ctx context.Context, sessionID string) ([]models.DecisionRecord, error)
	ListComplications(ctx context.Context, sessionID string) ([]models.Complication, error)
}

type TreeSource interface {
	Tree(procedureID string) (*decision.Tree, bool)
}

// SnapshotPublisher receives the live view of a session after every change.
type SnapshotPublisher interface {
	SaveSessionSnapshot(ctx context.Context, sessionID string, snapshot interface{}) error
	DeleteSessionSnapshot(ctx context.Context, sessionID string) error
}

type Invalidator interface {
	Invalidate(userID string)
}

// View is what callers see of a session: the summary row plus the engine state.
type View struct {
	ID       string            `json:"id"`
	UserID   string            `json:"user_id"`
	Status   string            `json:"status"`
	Snapshot decision.Snapshot `json:"snapshot"`
}

type active struct {
	mu      sync.Mutex
	row     *models.Session
	engine  *decision.Engine
	dropped bool
}

type Manager struct {
	store     Store
	trees     TreeSource
	engineCfg decision.EngineConfig
	retryCfg  retry.Config
	publisher SnapshotPublisher
	dashboard Invalidator
	now       func() time.Time
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*active
}

type Option func(*Manager)

func WithPublisher(p SnapshotPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithInvalidator(inv Invalidator) Option {
	return func(m *Manager) { m.dashboard = inv }
}

func WithRetry(cfg retry.Config) Option {
	return func(m *Manager) { m.retryCfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, trees TreeSource, engineCfg decision.EngineConfig, opts ...Option) *Manager {
	log := logger.Named("session")
	m := &Manager{
		store:     store,
		trees:     trees,
		engineCfg: engineCfg,
		retryCfg:  retry.PersistenceConfig(log),
		now:       time.Now,
		log:       log,
		sessions:  make(map[string]*active),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.engineCfg.Clock = m.now
	return m
}

func (m *Manager) Start(ctx context.Context, userID, procedureID string) (*View, error) {
	tree, ok := m.trees.Tree(procedureID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcedureNotFound, procedureID)
	}

	engine := decision.NewEngine(tree, m.engineCfg)
	now := m.now()
	row := &models.Session{
		ID:            uuid.New().String(),
		UserID:        userID,
		ProcedureID:   tree.Procedure.ID,
		ProcedureName: tree.Procedure.Name,
		Category:      tree.Procedure.Category,
		Status:        models.SessionActive,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	summarize(row, engine)

	err := retry.Do(ctx, m.retryCfg, func() error {
		return m.store.CreateSession(ctx, row)
	})
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("sqlite").Inc()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	a := &active{row: row, engine: engine}
	m.mu.Lock()
	m.sessions[row.ID] = a
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.log.Info("Session started",
		zap.String("session_id", row.ID),
		zap.String("user_id", userID),
		zap.String("procedure_id", procedureID),
	)

	view := m.view(a)
	m.publish(ctx, view)
	return view, nil
}

// Decide runs one decision through the session's engine and persists it. A rejected
// decision leaves both the engine and the store untouched.
func (m *Manager) Decide(ctx context.Context, sessionID string, step, option int, timeSpent time.Duration) (*decision.Outcome, error) {
	// History stores milliseconds; scoring must see the same value a replay will.
	timeSpent = timeSpent.Truncate(time.Millisecond)
	return m.apply(ctx, sessionID, func(e *decision.Engine) (*decision.Outcome, error) {
		return e.ProcessDecision(step, option, timeSpent)
	})
}

// Advance completes a step without a decision point.
func (m *Manager) Advance(ctx context.Context, sessionID string, step int, timeSpent time.Duration) (*decision.Outcome, error) {
	timeSpent = timeSpent.Truncate(time.Millisecond)
	return m.apply(ctx, sessionID, func(e *decision.Engine) (*decision.Outcome, error) {
		return e.Advance(step, timeSpent)
	})
}

func (m *Manager) apply(ctx context.Context, sessionID string, run func(*decision.Engine) (*decision.Outcome, error)) (*decision.Outcome, error) {
	a, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	if a.row.Status == models.SessionCompleted {
		return nil, ErrSessionCompleted
	}

	procedureID := a.engine.Procedure().ID
	outcome, err := run(a.engine)
	if err != nil {
		metrics.DecisionErrors.WithLabelValues("invalid_context").Inc()
		return nil, err
	}

	records := a.engine.Records()
	last := records[len(records)-1]

	row := *a.row
	summarize(&row, a.engine)
	row.UpdatedAt = m.now()

	record, comps, err := toModels(sessionID, last)
	if err == nil {
		err = retry.Do(ctx, m.retryCfg, func() error {
			return m.store.RecordDecision(ctx, &row, record, comps)
		})
	}
	if err != nil {
		// The engine has already moved on; forget it so the next call rebuilds from
		// what the store actually holds.
		m.drop(sessionID, a)
		metrics.PersistenceFailures.WithLabelValues("sqlite").Inc()
		m.log.Error("Failed to persist decision",
			zap.String("session_id", sessionID),
			zap.Int("sequence", last.Sequence),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}
	a.row = &row

	result := "incorrect"
	if outcome.IsCorrect {
		result = "correct"
	}
	if outcome.OptionIndex == decision.LinearOption {
		result = "linear"
	}
	metrics.DecisionsTotal.WithLabelValues(procedureID, result).Inc()
	metrics.DecisionTimeSeconds.WithLabelValues(procedureID).Observe(last.TimeSpent.Seconds())
	for _, c := range outcome.Complications {
		metrics.ComplicationsTotal.WithLabelValues(c.Type).Inc()
	}

	m.publish(ctx, m.view(a))
	return outcome, nil
}

// Complete closes the session, whether or not every step was reached, and releases its
// engine. Completing twice returns ErrSessionCompleted.
func (m *Manager) Complete(ctx context.Context, sessionID string) (*View, error) {
	a, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	if a.row.Status == models.SessionCompleted {
		return nil, ErrSessionCompleted
	}

	now := m.now()
	row := *a.row
	summarize(&row, a.engine)
	row.Status = models.SessionCompleted
	row.UpdatedAt = now
	row.CompletedAt = &now

	err = retry.Do(ctx, m.retryCfg, func() error {
		err := m.store.UpdateSession(ctx, &row)
		if errors.Is(err, sqlite.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("sqlite").Inc()
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	a.row = &row

	view := m.view(a)
	m.drop(sessionID, a)
	metrics.OverallScore.WithLabelValues(row.ProcedureID).Observe(row.OverallScore)

	if m.dashboard != nil {
		m.dashboard.Invalidate(row.UserID)
	}
	if m.publisher != nil {
		if err := m.publisher.DeleteSessionSnapshot(ctx, sessionID); err != nil {
			m.log.Warn("Failed to delete session snapshot", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	m.log.Info("Session completed",
		zap.String("session_id", sessionID),
		zap.Float64("overall", row.OverallScore),
		zap.String("grade", row.Grade),
	)
	return view, nil
}

// Snapshot returns the current state of a session, restoring it from the store if needed.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (*View, error) {
	a, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	return m.view(a), nil
}

// Active reports how many sessions currently hold an engine in memory.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// acquire returns the session locked. Callers must unlock a.mu.
func (m *Manager) acquire(ctx context.Context, sessionID string) (*active, error) {
	for {
		m.mu.Lock()
		a, ok := m.sessions[sessionID]
		m.mu.Unlock()

		if !ok {
			restored, err := m.restore(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			a = m.adopt(sessionID, restored)
		}

		a.mu.Lock()
		if !a.dropped {
			return a, nil
		}
		// Dropped while we waited for the lock; look again.
		a.mu.Unlock()
	}
}

// adopt registers a restored session unless another caller got there first.
func (m *Manager) adopt(sessionID string, a *active) *active {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[sessionID]; ok {
		return existing
	}
	if a.row.Status == models.SessionCompleted {
		return a
	}
	m.sessions[sessionID] = a
	metrics.ActiveSessions.Inc()
	return a
}

func (m *Manager) drop(sessionID string, a *active) {
	a.dropped = true

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sessionID] == a {
		delete(m.sessions, sessionID)
		metrics.ActiveSessions.Dec()
	}
}

// restore rebuilds an engine by replaying the stored trail in sequence order.
func (m *Manager) restore(ctx context.Context, sessionID string) (*active, error) {
	row, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	tree, ok := m.trees.Tree(row.ProcedureID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcedureNotFound, row.ProcedureID)
	}

	records, err := retry.DoWithResult(ctx, m.retryCfg, func() ([]models.DecisionRecord, error) {
		return m.store.ListDecisions(ctx, sessionID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}
	stored, err := retry.DoWithResult(ctx, m.retryCfg, func() ([]models.Complication, error) {
		return m.store.ListComplications(ctx, sessionID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load complications: %w", err)
	}
	compTypes := make(map[int][]string)
	for _, c := range stored {
		compTypes[c.Sequence] = append(compTypes[c.Sequence], c.Type)
	}

	engine := decision.NewEngine(tree, m.engineCfg)
	for _, r := range records {
		spent := time.Duration(r.TimeSpentMS) * time.Millisecond
		var outcome *decision.Outcome
		if r.OptionIndex == decision.LinearOption {
			outcome, err = engine.Advance(r.StepIndex, spent)
		} else {
			outcome, err = engine.ProcessDecision(r.StepIndex, r.OptionIndex, spent)
		}
		if err == nil {
			err = matchStored(outcome, r, compTypes[r.Sequence])
		}
		if err != nil {
			return nil, fmt.Errorf("%w: session %s sequence %d: %v", ErrReplayDiverged, sessionID, r.Sequence, err)
		}
	}

	m.log.Debug("Session restored", zap.String("session_id", sessionID), zap.Int("records", len(records)))
	return &active{row: row, engine: engine}, nil
}

// matchStored reports how a replayed outcome differs from what was recorded when the
// decision was first made. The procedure may have been edited since.
func matchStored(outcome *decision.Outcome, r models.DecisionRecord, complications []string) error {
	if outcome.IsCorrect != r.IsCorrect {
		return fmt.Errorf("is_correct %t, stored %t", outcome.IsCorrect, r.IsCorrect)
	}
	if outcome.NextStep != r.NextStep {
		return fmt.Errorf("next_step %d, stored %d", outcome.NextStep, r.NextStep)
	}
	if len(outcome.Complications) != len(complications) {
		return fmt.Errorf("%d complications, stored %d", len(outcome.Complications), len(complications))
	}
	for i, c := range outcome.Complications {
		if c.Type != complications[i] {
			return fmt.Errorf("complication %q, stored %q", c.Type, complications[i])
		}
	}
	if r.AppliedJSON == "" {
		return nil
	}
	var stored decision.Delta
	if err := json.Unmarshal([]byte(r.AppliedJSON), &stored); err != nil {
		return fmt.Errorf("unreadable applied delta: %w", err)
	}
	if outcome.Applied != stored {
		return fmt.Errorf("applied %+v, stored %+v", outcome.Applied, stored)
	}
	return nil
}

func (m *Manager) view(a *active) *View {
	return &View{
		ID:       a.row.ID,
		UserID:   a.row.UserID,
		Status:   a.row.Status,
		Snapshot: a.engine.Snapshot(),
	}
}

func (m *Manager) publish(ctx context.Context, view *View) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.SaveSessionSnapshot(ctx, view.ID, view); err != nil {
		m.log.Warn("Failed to publish session snapshot", zap.String("session_id", view.ID), zap.Error(err))
	}
}

func summarize(row *models.Session, e *decision.Engine) {
	mt := e.Metrics()
	row.CurrentStep = e.CurrentStep()
	row.TechnicalSkill = mt.TechnicalSkill
	row.DecisionMaking = mt.DecisionMaking
	row.TimeManagement = mt.TimeManagement
	row.TissueHandling = mt.TissueHandling
	row.SafetyScore = mt.SafetyScore
	row.OverallScore = mt.Overall()
	row.Grade = string(mt.Grade())

	records := e.Records()
	row.DecisionCount = len(records)
	row.CorrectCount = 0
	for _, r := range records {
		if r.IsCorrect {
			row.CorrectCount++
		}
	}
	row.ComplicationCount = len(e.Complications())
}

func toModels(sessionID string, r decision.DecisionRecord) (*models.DecisionRecord, []models.Complication, error) {
	impact, err := json.Marshal(r.Impact)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal impact: %w", err)
	}
	applied, err := json.Marshal(r.Applied)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal applied delta: %w", err)
	}

	record := &models.DecisionRecord{
		SessionID:   sessionID,
		Sequence:    r.Sequence,
		StepIndex:   r.StepIndex,
		OptionIndex: r.OptionIndex,
		TimeSpentMS: r.TimeSpent.Milliseconds(),
		IsCorrect:   r.IsCorrect,
		NextStep:    r.NextStep,
		ImpactJSON:  string(impact),
		AppliedJSON: string(applied),
		CreatedAt:   r.RecordedAt,
	}

	comps := make([]models.Complication, 0, len(r.Complications))
	for _, c := range r.Complications {
		comps = append(comps, models.Complication{
			SessionID:            sessionID,
			Sequence:             r.Sequence,
			StepIndex:            c.StepIndex,
			Type:                 c.Type,
			Description:          c.Description,
			InterventionRequired: c.InterventionRequired,
			RecoverySeconds:      c.RecoverySeconds,
			CreatedAt:            r.RecordedAt,
		})
	}
	return record, comps, nil
}
