package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/storage/models"
	"github.com/vetlab/backend/pkg/logger"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		procedure_id TEXT NOT NULL,
		procedure_name TEXT,
		category TEXT,
		status TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		technical_skill INTEGER NOT NULL DEFAULT 0,
		decision_making INTEGER NOT NULL DEFAULT 0,
		time_management INTEGER NOT NULL DEFAULT 0,
		tissue_handling INTEGER NOT NULL DEFAULT 0,
		safety_score INTEGER NOT NULL DEFAULT 0,
		overall_score REAL NOT NULL DEFAULT 0,
		grade TEXT,
		decision_count INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		complication_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS decision_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		step_index INTEGER NOT NULL,
		option_index INTEGER NOT NULL,
		time_spent_ms INTEGER NOT NULL,
		is_correct INTEGER NOT NULL,
		next_step INTEGER NOT NULL,
		impact TEXT,
		applied TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, sequence),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_session ON decision_records(session_id);

	CREATE TABLE IF NOT EXISTS complications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		step_index INTEGER NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		intervention_required INTEGER NOT NULL,
		recovery_seconds INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_complications_session ON complications(session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, procedure_id, procedure_name, category, status, current_step,
			technical_skill, decision_making, time_management, tissue_handling, safety_score,
			overall_score, grade, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.ProcedureID,
		s.ProcedureName,
		s.Category,
		s.Status,
		s.CurrentStep,
		s.TechnicalSkill,
		s.DecisionMaking,
		s.TimeManagement,
		s.TissueHandling,
		s.SafetyScore,
		s.OverallScore,
		s.Grade,
		s.StartedAt.UnixMilli(),
		s.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	logger.Debug("Session created", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	return nil
}

// RecordDecision appends one trail entry with its complications and updates the session
// summary in a single transaction, so history and summary never disagree.
func (c *Client) RecordDecision(ctx context.Context, s *models.Session, record *models.DecisionRecord, complications []models.Complication) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_records (session_id, sequence, step_index, option_index, time_spent_ms,
			is_correct, next_step, impact, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.Sequence,
		record.StepIndex,
		record.OptionIndex,
		record.TimeSpentMS,
		boolToInt(record.IsCorrect),
		record.NextStep,
		record.ImpactJSON,
		record.AppliedJSON,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision record: %w", err)
	}

	for _, comp := range complications {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO complications (session_id, sequence, step_index, type, description,
				intervention_required, recovery_seconds, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			comp.SessionID,
			comp.Sequence,
			comp.StepIndex,
			comp.Type,
			comp.Description,
			boolToInt(comp.InterventionRequired),
			comp.RecoverySeconds,
			comp.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert complication: %w", err)
		}
	}

	if err := updateSession(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}

	logger.Debug("Decision recorded",
		zap.String("session_id", record.SessionID),
		zap.Int("sequence", record.Sequence),
		zap.Bool("correct", record.IsCorrect),
	)
	return nil
}

// UpdateSession overwrites the summary columns of s.
func (c *Client) UpdateSession(ctx context.Context, s *models.Session) error {
	return updateSession(ctx, c.db, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateSession(ctx context.Context, db execer, s *models.Session) error {
	var completedAt interface{}
	if s.CompletedAt != nil {
		completedAt = s.CompletedAt.UnixMilli()
	}

	res, err := db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, current_step = ?, technical_skill = ?, decision_making = ?,
			time_management = ?, tissue_handling = ?, safety_score = ?, overall_score = ?, grade = ?,
			decision_count = ?, correct_count = ?, complication_count = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		s.Status,
		s.CurrentStep,
		s.TechnicalSkill,
		s.DecisionMaking,
		s.TimeManagement,
		s.TissueHandling,
		s.SafetyScore,
		s.OverallScore,
		s.Grade,
		s.DecisionCount,
		s.CorrectCount,
		s.ComplicationCount,
		s.UpdatedAt.UnixMilli(),
		completedAt,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, user_id, procedure_id, procedure_name, category, status, current_step,
	technical_skill, decision_making, time_management, tissue_handling, safety_score, overall_score, grade,
	decision_count, correct_count, complication_count, started_at, updated_at, completed_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*models.Session, error) {
	var s models.Session
	var procedureName, category, grade sql.NullString
	var startedAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ProcedureID,
		&procedureName,
		&category,
		&s.Status,
		&s.CurrentStep,
		&s.TechnicalSkill,
		&s.DecisionMaking,
		&s.TimeManagement,
		&s.TissueHandling,
		&s.SafetyScore,
		&s.OverallScore,
		&grade,
		&s.DecisionCount,
		&s.CorrectCount,
		&s.ComplicationCount,
		&startedAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ProcedureName = procedureName.String
	s.Category = category.String
	s.Grade = grade.String
	s.StartedAt = time.UnixMilli(startedAt)
	s.UpdatedAt = time.UnixMilli(updatedAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		s.CompletedAt = &t
	}
	return &s, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessionsByUser returns the user's sessions, oldest first. limit <= 0 means no limit.
func (c *Client) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?
		ORDER BY started_at ASC, id ASC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// ListDecisions returns the session trail in sequence order.
func (c *Client) ListDecisions(ctx context.Context, sessionID string) ([]models.DecisionRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, sequence, step_index, option_index, time_spent_ms, is_correct, next_step,
			impact, applied, created_at
		FROM decision_records
		WHERE session_id = ?
		ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var records []models.DecisionRecord
	for rows.Next() {
		var r models.DecisionRecord
		var correct int
		var impact, applied sql.NullString
		var createdAt int64

		err := rows.Scan(&r.ID, &r.SessionID, &r.Sequence, &r.StepIndex, &r.OptionIndex, &r.TimeSpentMS,
			&correct, &r.NextStep, &impact, &applied, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}

		r.IsCorrect = correct == 1
		r.ImpactJSON = impact.String
		r.AppliedJSON = applied.String
		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}

	return records, nil
}

func (c *Client) ListComplications(ctx context.Context, sessionID string) ([]models.Complication, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, sequence, step_index, type, description, intervention_required,
			recovery_seconds, created_at
		FROM complications
		WHERE session_id = ?
		ORDER BY sequence ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list complications: %w", err)
	}
	defer rows.Close()

	var out []models.Complication
	for rows.Next() {
		var comp models.Complication
		var intervention int
		var description sql.NullString
		var createdAt int64

		err := rows.Scan(&comp.ID, &comp.SessionID, &comp.Sequence, &comp.StepIndex, &comp.Type, &description,
			&intervention, &comp.RecoverySeconds, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan complication: %w", err)
		}

		comp.Description = description.String
		comp.InterventionRequired = intervention == 1
		comp.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate complications: %w", err)
	}

	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
