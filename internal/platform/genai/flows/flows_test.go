package flows

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/woundcare/woundcare/internal/platform/genai"
)

const photo = "data:image/jpeg;base64,aGVsbG8="

type stubModel struct {
	response string
	calls    int
	last     genai.Request
}

func (m *stubModel) Generate(_ context.Context, req genai.Request) (json.RawMessage, error) {
	m.calls++
	m.last = req
	return json.RawMessage(m.response), nil
}

func TestAssessRisk(t *testing.T) {
	model := &stubModel{response: `{"riskAssessment":"Low risk of infection","recommendation":"Keep the dressing dry"}`}
	out, err := New(model, nil).AssessRisk(context.Background(), RiskInput{PhotoDataURI: photo, Notes: "Granulation tissue visible"})
	if err != nil {
		t.Fatalf("AssessRisk() error: %v", err)
	}
	if out.RiskAssessment != "Low risk of infection" || out.Recommendation != "Keep the dressing dry" {
		t.Errorf("unexpected output %+v", out)
	}
	if model.last.Schema["type"] != "OBJECT" {
		t.Error("expected response schema on the request")
	}
	var text strings.Builder
	media := 0
	for _, p := range model.last.Parts {
		if p.Media != nil {
			media++
		}
		text.WriteString(p.Text)
	}
	if media != 1 || !strings.Contains(text.String(), "Granulation tissue visible") {
		t.Errorf("expected one image and the notes in the prompt, got %d images, %q", media, text.String())
	}
}

func TestAssessRisk_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    RiskInput
		field string
	}{
		{"empty notes", RiskInput{PhotoDataURI: photo, Notes: "  "}, "notes"},
		{"empty photo", RiskInput{Notes: "n"}, "photoDataUri"},
		{"photo not a data uri", RiskInput{PhotoDataURI: "https://example.com/a.png", Notes: "n"}, "photoDataUri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{response: `{}`}
			_, err := New(model, nil).AssessRisk(context.Background(), tt.in)
			var verr *genai.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected ValidationError on %s, got %v", tt.field, err)
			}
			if model.calls != 0 {
				t.Fatal("model must not be called on invalid input")
			}
		})
	}
}

func TestAssessRisk_SchemaViolation(t *testing.T) {
	model := &stubModel{response: `{"riskAssessment":"High","recommendations":"plural field name"}`}
	_, err := New(model, nil).AssessRisk(context.Background(), RiskInput{PhotoDataURI: photo, Notes: "n"})
	var serr *genai.SchemaValidationError
	if !errors.As(err, &serr) || serr.Flow != FlowRiskAssessment {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
}

func TestSummarizeProgress(t *testing.T) {
	model := &stubModel{response: `{"summary":"Wound area reduced by half"}`}
	out, err := New(model, nil).SummarizeProgress(context.Background(), SummaryInput{
		Images: []string{photo, photo, photo},
		Notes:  "Weekly follow up",
	})
	if err != nil {
		t.Fatalf("SummarizeProgress() error: %v", err)
	}
	if out.Summary != "Wound area reduced by half" {
		t.Errorf("unexpected summary %q", out.Summary)
	}
	media := 0
	for _, p := range model.last.Parts {
		if p.Media != nil {
			media++
		}
	}
	if media != 3 {
		t.Errorf("expected 3 images in prompt, got %d", media)
	}
}

func TestSummarizeProgress_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    SummaryInput
		field string
	}{
		{"no images", SummaryInput{Notes: "n"}, "images"},
		{"empty notes", SummaryInput{Images: []string{photo}}, "notes"},
		{"bad image", SummaryInput{Images: []string{photo, "nope"}, Notes: "n"}, "images[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{}
			_, err := New(model, nil).SummarizeProgress(context.Background(), tt.in)
			var verr *genai.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected ValidationError on %s, got %v", tt.field, err)
			}
			if model.calls != 0 {
				t.Fatal("model must not be called on invalid input")
			}
		})
	}
}

const compareResponse = `{
  "relatorio_comparativo": {
    "intervalo_tempo": "14 dias",
    "consistencia_dados": {},
    "resumo_descritivo_evolucao": "Evolução positiva",
    "analise_quantitativa_progressao": {
      "delta_area_total_afetada": "-15.5%",
      "delta_coloracao": {"mudanca_area_hiperpigmentacao": "Redução de 5%", "mudanca_area_eritema_rubor": "Redução de 10%"},
      "delta_edema": "Redução moderada",
      "delta_textura": "Melhora"
    }
  },
  "analise_imagem_1": %[1]s,
  "analise_imagem_2": %[1]s
}`

const imageAnalysis = `{
  "avaliacao_qualidade": {"iluminacao": "Adequada", "foco": "Nítido", "escala_referencia_presente": "Não", "fundo": "Neutro"},
  "analise_dimensional": {"area_total_afetada": "25.8", "unidade_medida": "cm²"},
  "analise_colorimetrica": {"cores_dominantes": [{"cor": "Vermelho", "hex_aproximado": "#C0392B", "area_percentual": 0}]},
  "analise_textura_e_caracteristicas": {"edema": "Leve", "descamacao": "Ausente", "brilho_superficial": "Moderado", "bordas_lesao": "Irregulares"},
  "analise_histograma": {"distribuicao_cores": [{"faixa_cor": "Vermelhos", "contagem_pixels_percentual": 45}]}
}`

func compareInput() CompareInput {
	return CompareInput{
		Report1Content: "Ferida com esfacelo",
		Report2Content: "Ferida com granulação",
		Image1DataURI:  photo,
		Image2DataURI:  photo,
		Report1Date:    "2024-05-01",
		Report2Date:    "2024-05-15",
	}
}

func TestCompareReports(t *testing.T) {
	resp := strings.ReplaceAll(compareResponse, "%[1]s", imageAnalysis)
	out, err := New(&stubModel{response: resp}, nil).CompareReports(context.Background(), compareInput())
	if err != nil {
		t.Fatalf("CompareReports() error: %v", err)
	}
	if out.RelatorioComparativo.IntervaloTempo != "14 dias" {
		t.Errorf("unexpected interval %q", out.RelatorioComparativo.IntervaloTempo)
	}
	cores := out.AnaliseImagem1.AnaliseColorimetrica.CoresDominantes
	if len(cores) != 1 || cores[0].AreaPercentual == nil || *cores[0].AreaPercentual != 0 {
		t.Errorf("expected zero percentage to be accepted, got %+v", cores)
	}
}

func TestCompareReports_SchemaViolation(t *testing.T) {
	broken := strings.Replace(imageAnalysis, `"foco": "Nítido", `, "", 1)
	resp := strings.ReplaceAll(compareResponse, "%[1]s", broken)
	_, err := New(&stubModel{response: resp}, nil).CompareReports(context.Background(), compareInput())
	var serr *genai.SchemaValidationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}

	noPercent := strings.Replace(imageAnalysis, `, "area_percentual": 0`, "", 1)
	resp = strings.ReplaceAll(compareResponse, "%[1]s", noPercent)
	if _, err := New(&stubModel{response: resp}, nil).CompareReports(context.Background(), compareInput()); !errors.As(err, &serr) {
		t.Fatalf("expected SchemaValidationError for missing number, got %v", err)
	}
}

func TestCompareReports_Validation(t *testing.T) {
	in := compareInput()
	in.Report2Date = ""
	model := &stubModel{}
	_, err := New(model, nil).CompareReports(context.Background(), in)
	var verr *genai.ValidationError
	if !errors.As(err, &verr) || verr.Field != "report2Date" {
		t.Fatalf("expected ValidationError on report2Date, got %v", err)
	}
	if model.calls != 0 {
		t.Fatal("model must not be called on invalid input")
	}
}
