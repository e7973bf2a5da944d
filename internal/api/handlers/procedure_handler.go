package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vetlab/backend/internal/catalog"
	"github.com/vetlab/backend/internal/procedure"
)

type ProcedureHandler struct {
	catalog *catalog.Catalog
}

func NewProcedureHandler(c *catalog.Catalog) *ProcedureHandler {
	return &ProcedureHandler{
		catalog: c,
	}
}

type procedureSummary struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Category      string             `json:"category"`
	Metadata      procedure.Metadata `json:"metadata"`
	StepCount     int                `json:"step_count"`
	DecisionCount int                `json:"decision_count"`
}

// Trainee-facing views leave out which option is correct and what it scores.
type stepView struct {
	Index               int            `json:"index"`
	Title               string         `json:"title"`
	Description         string         `json:"description,omitempty"`
	ExpectedDuration    int            `json:"expected_duration"`
	TechnicalDifficulty procedure.Tier `json:"technical_difficulty,omitempty"`
	Criticality         procedure.Tier `json:"criticality,omitempty"`
	Question            string         `json:"question,omitempty"`
	Options             []string       `json:"options,omitempty"`
}

type procedureView struct {
	procedureSummary
	Steps   []stepView `json:"steps"`
	Sources []string   `json:"sources,omitempty"`
}

func summarize(p *procedure.Procedure) procedureSummary {
	s := procedureSummary{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Metadata:  p.Metadata,
		StepCount: len(p.Steps),
	}
	for _, step := range p.Steps {
		if step.HasDecision() {
			s.DecisionCount++
		}
	}
	return s
}

func (h *ProcedureHandler) List(c *fiber.Ctx) error {
	procedures := h.catalog.List()
	out := make([]procedureSummary, 0, len(procedures))
	for _, p := range procedures {
		out = append(out, summarize(p))
	}

	return c.JSON(fiber.Map{
		"procedures": out,
		"count":      len(out),
	})
}

func (h *ProcedureHandler) Get(c *fiber.Ctx) error {
	p, ok := h.catalog.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Procedure not found",
		})
	}

	view := procedureView{
		procedureSummary: summarize(p),
		Steps:            make([]stepView, 0, len(p.Steps)),
		Sources:          p.Sources,
	}
	for _, step := range p.Steps {
		sv := stepView{
			Index:               step.Index,
			Title:               step.Title,
			Description:         step.Description,
			ExpectedDuration:    step.ExpectedDuration,
			TechnicalDifficulty: step.TechnicalDifficulty,
			Criticality:         step.Criticality,
		}
		if step.HasDecision() {
			sv.Question = step.Decision.Question
			for _, opt := range step.Decision.Options {
				sv.Options = append(sv.Options, opt.Text)
			}
		}
		view.Steps = append(view.Steps, sv)
	}

	return c.JSON(view)
}
