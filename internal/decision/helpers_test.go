package decision

import "github.com/vetlab/backend/internal/procedure"

func intPtr(v int) *int {
	return &v
}

// spayProcedure is a small procedure: a decision, a linear step, a decision with explicit
// sub-scores and an emergency step.
func spayProcedure() *procedure.Procedure {
	return &procedure.Procedure{
		ID:       "canine-ovariohysterectomy",
		Name:     "Canine ovariohysterectomy",
		Category: "soft_tissue",
		Metadata: procedure.Metadata{Difficulty: "intermediate", Species: "canine"},
		Sources:  []string{"Fossum, Small Animal Surgery", "Tobias, Veterinary Surgery", "BSAVA Manual"},
		Steps: []procedure.Step{
			{
				Title:            "Ligate the ovarian pedicle",
				ExpectedDuration: 60,
				Decision: &procedure.DecisionPoint{
					Question: "Which ligature technique?",
					Options: []procedure.Option{
						{Text: "Three-clamp technique with transfixing ligature", IsCorrect: true, Explanation: "Secure haemostasis"},
						{Text: "Single encircling ligature under tension", Severity: procedure.SeverityCritical, Explanation: "Ligature may slip"},
						{Text: "Excess traction on the suspensory ligament", Severity: procedure.SeverityModerate},
					},
				},
			},
			{
				Title:            "Exteriorise the uterine body",
				ExpectedDuration: 30,
			},
			{
				Title:            "Close the linea alba",
				ExpectedDuration: 120,
				Decision: &procedure.DecisionPoint{
					Question: "Suture pattern?",
					Options: []procedure.Option{
						{Text: "Simple continuous", IsCorrect: true, TechniqueScore: intPtr(25), SafetyScore: intPtr(10)},
						{Text: "Include subcutaneous fat", Severity: procedure.SeverityMinor, TechniqueScore: intPtr(-4), SafetyScore: intPtr(-1)},
					},
				},
			},
			{
				Title:            "Emergency Intervention",
				ExpectedDuration: 300,
			},
		},
	}
}

func mustBuild(p *procedure.Procedure) *Tree {
	tree, err := BuildTree(p)
	if err != nil {
		panic(err)
	}
	return tree
}
