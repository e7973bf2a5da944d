package decision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vetlab/backend/internal/procedure"
)

func TestGenerateFeedback_English(t *testing.T) {
	opt := procedure.Option{
		IsCorrect:   true,
		Explanation: "Secure haemostasis.",
		Outcome:     "No bleeding at closure.",
		Rationale:   "Transfixing ligatures do not slip.",
	}

	fb := GenerateFeedback("en", opt, []string{"a", "b", "c"}, 2)

	assert.Equal(t, "Correct choice. Secure haemostasis.", fb.Primary)
	assert.True(t, strings.HasSuffix(fb.Technical, "No bleeding at closure."))
	assert.Equal(t, "Clinical outcome: No bleeding at closure.", fb.Clinical)
	assert.Equal(t, "Teaching point: Transfixing ligatures do not slip.", fb.Educational)
	assert.Equal(t, []string{"a", "b"}, fb.References)
}

func TestGenerateFeedback_CriticalAndDefaults(t *testing.T) {
	fb := GenerateFeedback("en", procedure.Option{Severity: procedure.SeverityCritical}, nil, 0)

	assert.True(t, strings.HasPrefix(fb.Primary, "Critical error! "))
	assert.Contains(t, fb.Primary, "No explanation is recorded")
	assert.Nil(t, fb.References)
}

func TestGenerateFeedback_UnknownLocaleFallsBackToPersian(t *testing.T) {
	fb := GenerateFeedback("de", procedure.Option{IsCorrect: true, Explanation: "x"}, nil, 2)
	assert.Equal(t, "انتخاب صحیح. x", fb.Primary)
}

func TestGenerateFeedback_ReferencesAreCopied(t *testing.T) {
	sources := []string{"a", "b"}
	fb := GenerateFeedback("fa", procedure.Option{}, sources, 2)
	fb.References[0] = "changed"
	assert.Equal(t, "a", sources[0])
}
