package flows

import (
	"github.com/woundcare/woundcare/internal/platform/genai"
)

// RiskInput is a wound photo (base64 data URI) with the clinician's notes.
type RiskInput struct {
	PhotoDataURI string `json:"photoDataUri"`
	Notes        string `json:"notes"`
}

// RiskOutput is the model's risk assessment.
type RiskOutput struct {
	RiskAssessment string `json:"riskAssessment" validate:"required"`
	Recommendation string `json:"recommendation" validate:"required"`
}

func checkRisk(in RiskInput) error {
	if err := dataURI("photoDataUri", in.PhotoDataURI); err != nil {
		return err
	}
	return required("notes", in.Notes)
}

var riskPrompt = genai.MustPrompt(FlowRiskAssessment, `You are an AI assistant specializing in wound care and healing.

You will analyze the provided wound image and notes to assess potential risks and provide recommendations for improved healing outcomes.

Analyze the following information:

Wound Image: {{media .PhotoDataURI}}
Notes: {{.Notes}}

Based on the image and notes, provide a risk assessment and a recommendation.
`)

var riskSchema = object(map[string]any{
	"riskAssessment": str(),
	"recommendation": str(),
}, "riskAssessment", "recommendation")
