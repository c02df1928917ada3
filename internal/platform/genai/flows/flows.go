// Package flows defines the wound care prompt flows.
package flows

import (
	"context"
	"strings"

	"github.com/woundcare/woundcare/internal/platform/genai"
)

// Flow names, also used as metric labels.
const (
	FlowRiskAssessment  = "risk_assessment"
	FlowProgressSummary = "progress_summary"
	FlowCompareReports  = "compare_reports"
)

// Flows bundles the prompt flows bound to one model.
type Flows struct {
	risk    *genai.Flow[RiskInput, RiskOutput]
	summary *genai.Flow[SummaryInput, SummaryOutput]
	compare *genai.Flow[CompareInput, CompareOutput]
}

// New binds the flows to model. observer may be nil.
func New(model genai.Model, observer genai.Observer) *Flows {
	return &Flows{
		risk:    genai.NewFlow[RiskInput, RiskOutput](FlowRiskAssessment, riskPrompt, riskSchema, checkRisk, model, observer),
		summary: genai.NewFlow[SummaryInput, SummaryOutput](FlowProgressSummary, summaryPrompt, summarySchema, checkSummary, model, observer),
		compare: genai.NewFlow[CompareInput, CompareOutput](FlowCompareReports, comparePrompt, compareSchema, checkCompare, model, observer),
	}
}

// AssessRisk analyses one wound photo and its notes.
func (f *Flows) AssessRisk(ctx context.Context, in RiskInput) (*RiskOutput, error) {
	return f.risk.Run(ctx, in)
}

// SummarizeProgress summarises healing progress across several photos.
func (f *Flows) SummarizeProgress(ctx context.Context, in SummaryInput) (*SummaryOutput, error) {
	return f.summary.Run(ctx, in)
}

// CompareReports produces the comparative analysis of two wound reports.
func (f *Flows) CompareReports(ctx context.Context, in CompareInput) (*CompareOutput, error) {
	return f.compare.Run(ctx, in)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &genai.ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func dataURI(field, value string) error {
	if err := required(field, value); err != nil {
		return err
	}
	if _, err := genai.ParseDataURI(value); err != nil {
		return &genai.ValidationError{Field: field, Message: err.Error()}
	}
	return nil
}

func object(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "OBJECT", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str() map[string]any { return map[string]any{"type": "STRING"} }

func num() map[string]any { return map[string]any{"type": "NUMBER"} }

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "ARRAY", "items": items}
}
