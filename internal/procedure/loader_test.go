package procedure

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const enterotomyYAML = `
id: canine-enterotomy
name: Canine enterotomy
category: gastrointestinal
metadata:
  difficulty: advanced
  species: canine
sources:
  - Fossum, Small Animal Surgery
steps:
  - index: 7
    title: Isolate the affected segment
    expected_duration: 90
    technical_difficulty: medium
    criticality: high
    decision:
      question: How do you isolate the segment?
      options:
        - text: Pack off with moistened laparotomy sponges
          is_correct: true
          technique_score: 20
        - text: Exteriorise without packing
          severity: moderate
          safety_score: -8
  - title: Emergency Intervention
    expected_duration: 300
    is_emergency: true
`

const enterotomyJSON = `{
  "id": "canine-enterotomy-json",
  "name": "Canine enterotomy",
  "steps": [
    {"title": "Incise", "expected_duration": 30,
     "decision": {"question": "Where?", "options": [
       {"text": "Antimesenteric border", "is_correct": true},
       {"text": "Mesenteric border", "severity": "critical"}
     ]}}
  ]
}`

func TestParse_YAML(t *testing.T) {
	p, err := Parse([]byte(enterotomyYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, "canine-enterotomy", p.ID)
	assert.Equal(t, "advanced", p.Metadata.Difficulty)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, 0, p.Steps[0].Index, "indexes follow position")
	assert.Equal(t, 1, p.Steps[1].Index)
	assert.Equal(t, TierHigh, p.Steps[0].Criticality)
	assert.True(t, p.Steps[1].IsEmergency)
	assert.False(t, p.Steps[1].HasDecision())

	opts := p.Steps[0].Decision.Options
	require.Len(t, opts, 2)
	require.NotNil(t, opts[0].TechniqueScore)
	assert.Equal(t, 20, *opts[0].TechniqueScore)
	assert.Nil(t, opts[0].SafetyScore)
	require.NotNil(t, opts[1].SafetyScore)
	assert.Equal(t, -8, *opts[1].SafetyScore)
	assert.Equal(t, SeverityModerate, opts[1].Severity)
}

func TestParse_JSON(t *testing.T) {
	p, err := Parse([]byte(enterotomyJSON), ".json")
	require.NoError(t, err)
	assert.True(t, p.Steps[0].Decision.Options[1].IsCritical())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing id", body: "name: x\nsteps:\n  - title: a\n"},
		{name: "no steps", body: "id: x\n"},
		{name: "empty decision", body: "id: x\nsteps:\n  - title: a\n    decision:\n      question: q\n"},
		{name: "negative duration", body: "id: x\nsteps:\n  - title: a\n    expected_duration: -1\n"},
		{name: "not yaml", body: "id: [x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), ".yaml")
			assert.Error(t, err)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(enterotomyYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(enterotomyJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("id: x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.yaml"), []byte(enterotomyYAML), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	procedures, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, procedures, 2)
	assert.Equal(t, "canine-enterotomy", procedures[0].ID)
	assert.Equal(t, "canine-enterotomy-json", procedures[1].ID)
}

func TestLoadDir_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(enterotomyYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(enterotomyYAML), 0o644))

	_, err := LoadDir(dir)
	assert.Error(t, err)
}

func TestWatcher_DebouncedReload(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(enterotomyYAML), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())

	cancel()
	assert.NoError(t, <-done)
}
