// Package dashboard summarizes a trainee's session history for the progress dashboard.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vetlab/backend/internal/cache/lru"
	"github.com/vetlab/backend/internal/metrics"
	"github.com/vetlab/backend/internal/storage/models"
	"github.com/vetlab/backend/pkg/logger"
	"github.com/vetlab/backend/pkg/utils"
)

const cacheNamespace = "dashboard"

// recentLimit bounds RecentScores.
const recentLimit = 10

type SessionSource interface {
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.Session, error)
}

type MetricAverages struct {
	TechnicalSkill float64 `json:"technical_skill"`
	DecisionMaking float64 `json:"decision_making"`
	TimeManagement float64 `json:"time_management"`
	TissueHandling float64 `json:"tissue_handling"`
	SafetyScore    float64 `json:"safety_score"`
}

// UserStats is shared between callers through the cache and must be treated as read-only.
type UserStats struct {
	UserID             string         `json:"user_id"`
	TotalSessions      int            `json:"total_sessions"`
	CompletedSessions  int            `json:"completed_sessions"`
	ActiveSessions     int            `json:"active_sessions"`
	AverageScore       float64        `json:"average_score"`
	MedianScore        float64        `json:"median_score"`
	BestScore          float64        `json:"best_score"`
	ScoreStdDev        float64        `json:"score_std_dev"`
	MetricAverages     MetricAverages `json:"metric_averages"`
	GradeDistribution  map[string]int `json:"grade_distribution"`
	TotalDecisions     int            `json:"total_decisions"`
	CorrectDecisions   int            `json:"correct_decisions"`
	Accuracy           float64        `json:"accuracy"`
	TotalComplications int            `json:"total_complications"`
	ProcedureCounts    map[string]int `json:"procedure_counts"`
	Trend              Trend          `json:"trend"`
	TrendSlope         float64        `json:"trend_slope"`
	RecentScores       []float64      `json:"recent_scores"`
	ComputedAt         time.Time      `json:"computed_at"`
}

type Aggregator struct {
	source SessionSource
	cache  *lru.Cache[string, *UserStats]
	group  singleflight.Group
	now    func() time.Time
	log    *zap.Logger

	// generations counts invalidations per cache key. A computation only caches its
	// result if no invalidation happened while it ran.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewAggregator(source SessionSource, cache *lru.Cache[string, *UserStats]) *Aggregator {
	return &Aggregator{
		source:      source,
		cache:       cache,
		now:         time.Now,
		log:         logger.Named("dashboard"),
		generations: make(map[string]uint64),
	}
}

func cacheKey(userID string) string {
	return utils.CacheKey(cacheNamespace, userID)
}

// UserStats returns the memoized statistics for userID, recomputing them from the
// session store on a miss. Concurrent misses for one user share a single computation.
func (a *Aggregator) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	key := cacheKey(userID)
	if cached, ok := a.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(cacheNamespace).Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues(cacheNamespace).Inc()

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		gen := a.generation(key)
		sessions, err := a.source.ListSessionsByUser(ctx, userID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		computed := Compute(userID, sessions, a.now())

		a.mu.Lock()
		if a.generations[key] == gen {
			a.cache.Set(key, computed)
		}
		a.mu.Unlock()

		a.log.Debug("Dashboard stats computed",
			zap.String("user_id", userID),
			zap.Int("sessions", computed.TotalSessions),
			zap.String("trend", string(computed.Trend)),
		)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserStats), nil
}

// Invalidate forgets the cached statistics of userID. A computation already in flight
// still answers its callers but does not repopulate the cache.
func (a *Aggregator) Invalidate(userID string) {
	key := cacheKey(userID)

	a.mu.Lock()
	a.generations[key]++
	a.cache.Delete(key)
	a.mu.Unlock()

	a.group.Forget(key)
}

func (a *Aggregator) generation(key string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generations[key]
}

func (a *Aggregator) CacheStats() lru.Stats {
	return a.cache.Stats()
}

// Compute builds the statistics from sessions ordered oldest first. Score figures and
// the trend only consider completed sessions.
func Compute(userID string, sessions []models.Session, now time.Time) *UserStats {
	out := &UserStats{
		UserID:            userID,
		TotalSessions:     len(sessions),
		GradeDistribution: make(map[string]int),
		ProcedureCounts:   make(map[string]int),
		RecentScores:      []float64{},
		ComputedAt:        now,
	}

	var scores, ts, dm, tm, th, ss []float64
	for _, s := range sessions {
		out.ProcedureCounts[s.ProcedureID]++
		out.TotalDecisions += s.DecisionCount
		out.CorrectDecisions += s.CorrectCount
		out.TotalComplications += s.ComplicationCount

		if s.Status != models.SessionCompleted {
			out.ActiveSessions++
			continue
		}
		out.CompletedSessions++
		out.GradeDistribution[s.Grade]++

		scores = append(scores, s.OverallScore)
		ts = append(ts, float64(s.TechnicalSkill))
		dm = append(dm, float64(s.DecisionMaking))
		tm = append(tm, float64(s.TimeManagement))
		th = append(th, float64(s.TissueHandling))
		ss = append(ss, float64(s.SafetyScore))
	}

	if out.TotalDecisions > 0 {
		out.Accuracy = round2(float64(out.CorrectDecisions) / float64(out.TotalDecisions) * 100)
	}

	if len(scores) > 0 {
		out.AverageScore = round2(mean(scores))
		median, _ := stats.Median(scores)
		out.MedianScore = round2(median)
		best, _ := stats.Max(scores)
		out.BestScore = best
		sd, _ := stats.StandardDeviation(scores)
		out.ScoreStdDev = round2(sd)

		out.MetricAverages = MetricAverages{
			TechnicalSkill: round2(mean(ts)),
			DecisionMaking: round2(mean(dm)),
			TimeManagement: round2(mean(tm)),
			TissueHandling: round2(mean(th)),
			SafetyScore:    round2(mean(ss)),
		}

		start := len(scores) - recentLimit
		if start < 0 {
			start = 0
		}
		out.RecentScores = append(out.RecentScores, scores[start:]...)
	}

	out.Trend, out.TrendSlope = DetectTrend(scores)
	out.TrendSlope = round2(out.TrendSlope)
	return out
}

func mean(data []float64) float64 {
	m, err := stats.Mean(data)
	if err != nil {
		return 0
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
