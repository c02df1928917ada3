package flows

import (
	"fmt"

	"github.com/woundcare/woundcare/internal/platform/genai"
)

// SummaryInput is a series of wound photos over time with progress notes.
type SummaryInput struct {
	Images []string `json:"images"`
	Notes  string   `json:"notes"`
}

// SummaryOutput is the healing progress summary.
type SummaryOutput struct {
	Summary string `json:"summary" validate:"required"`
}

func checkSummary(in SummaryInput) error {
	if len(in.Images) == 0 {
		return &genai.ValidationError{Field: "images", Message: "at least one image is required"}
	}
	for i, img := range in.Images {
		if err := dataURI(fmt.Sprintf("images[%d]", i), img); err != nil {
			return err
		}
	}
	return required("notes", in.Notes)
}

var summaryPrompt = genai.MustPrompt(FlowProgressSummary, `You are a healthcare provider summarizing a patient's wound healing progress.

Here are the notes describing the wound healing progress: {{.Notes}}
Here are the images of the wound over time: {{range .Images}} {{media .}} {{end}}

Please provide a summary of the wound healing progress.
`)

var summarySchema = object(map[string]any{
	"summary": str(),
}, "summary")
