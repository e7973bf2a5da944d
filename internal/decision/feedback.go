package decision

import "github.com/vetlab/backend/internal/procedure"

const DefaultMaxReferences = 2

// Feedback is the human-readable commentary attached to an outcome.
type Feedback struct {
	Primary     string   `json:"primary"`
	Technical   string   `json:"technical"`
	Clinical    string   `json:"clinical"`
	Educational string   `json:"educational"`
	References  []string `json:"references,omitempty"`
}

type feedbackTemplates struct {
	correctPrimary     string
	incorrectPrimary   string
	criticalPrimary    string
	correctTechnical   string
	incorrectTechnical string
	clinical           string
	educational        string
	defaultExplanation string
	defaultOutcome     string
	defaultRationale   string
	linearPrimary      string
	linearTechnical    string
}

var templates = map[string]feedbackTemplates{
	"fa": {
		correctPrimary:     "انتخاب صحیح. ",
		incorrectPrimary:   "انتخاب نادرست. ",
		criticalPrimary:    "خطای بحرانی! ",
		correctTechnical:   "تکنیک انتخاب‌شده با استانداردهای جراحی مطابقت دارد. ",
		incorrectTechnical: "این انتخاب از نظر تکنیکی خطر آسیب بافتی را افزایش می‌دهد. ",
		clinical:           "پیامد بالینی: ",
		educational:        "نکته آموزشی: ",
		defaultExplanation: "توضیحی برای این گزینه ثبت نشده است.",
		defaultOutcome:     "پیامد این انتخاب را با استاد راهنما بررسی کنید.",
		defaultRationale:   "منابع مرجع این مرحله را مرور کنید.",
		linearPrimary:      "مرحله تکمیل شد.",
		linearTechnical:    "مرحله بدون نقطه تصمیم‌گیری انجام شد.",
	},
	"en": {
		correctPrimary:     "Correct choice. ",
		incorrectPrimary:   "Incorrect choice. ",
		criticalPrimary:    "Critical error! ",
		correctTechnical:   "The chosen technique follows surgical standards. ",
		incorrectTechnical: "This choice raises the risk of tissue injury. ",
		clinical:           "Clinical outcome: ",
		educational:        "Teaching point: ",
		defaultExplanation: "No explanation is recorded for this option.",
		defaultOutcome:     "Review the outcome of this choice with your supervisor.",
		defaultRationale:   "Review the reference material for this step.",
		linearPrimary:      "Step completed.",
		linearTechnical:    "Step without a decision point performed.",
	},
}

// GenerateFeedback formats the commentary for choosing opt. Unknown locales fall back to "fa".
// At most maxRefs sources are attached; a non-positive maxRefs uses DefaultMaxReferences.
func GenerateFeedback(locale string, opt procedure.Option, sources []string, maxRefs int) Feedback {
	t := lookupTemplates(locale)

	explanation := orDefault(opt.Explanation, t.defaultExplanation)
	outcome := orDefault(opt.Outcome, t.defaultOutcome)
	rationale := orDefault(opt.Rationale, t.defaultRationale)

	fb := Feedback{
		Clinical:    t.clinical + outcome,
		Educational: t.educational + rationale,
		References:  capReferences(sources, maxRefs),
	}

	switch {
	case opt.IsCorrect:
		fb.Primary = t.correctPrimary + explanation
		fb.Technical = t.correctTechnical
	case opt.IsCritical():
		fb.Primary = t.criticalPrimary + explanation
		fb.Technical = t.incorrectTechnical
	default:
		fb.Primary = t.incorrectPrimary + explanation
		fb.Technical = t.incorrectTechnical
	}
	fb.Technical += outcome

	return fb
}

func linearFeedback(locale string, step procedure.Step, sources []string, maxRefs int) Feedback {
	t := lookupTemplates(locale)
	return Feedback{
		Primary:     t.linearPrimary,
		Technical:   t.linearTechnical,
		Clinical:    t.clinical + orDefault(step.Description, t.defaultOutcome),
		Educational: t.educational + t.defaultRationale,
		References:  capReferences(sources, maxRefs),
	}
}

func lookupTemplates(locale string) feedbackTemplates {
	if t, ok := templates[locale]; ok {
		return t
	}
	return templates["fa"]
}

func capReferences(sources []string, maxRefs int) []string {
	if maxRefs <= 0 {
		maxRefs = DefaultMaxReferences
	}
	if len(sources) == 0 {
		return nil
	}
	if len(sources) > maxRefs {
		sources = sources[:maxRefs]
	}
	out := make([]string, len(sources))
	copy(out, sources)
	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
