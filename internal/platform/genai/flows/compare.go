package flows

import (
	"github.com/woundcare/woundcare/internal/platform/genai"
)

// CompareInput holds two wound reports with their photos and dates.
type CompareInput struct {
	Report1Content string `json:"report1Content"`
	Report2Content string `json:"report2Content"`
	Image1DataURI  string `json:"image1DataUri"`
	Image2DataURI  string `json:"image2DataUri"`
	Report1Date    string `json:"report1Date"`
	Report2Date    string `json:"report2Date"`
}

// CompareOutput is the comparative analysis. Field names follow the
// Portuguese wire schema consumed by the report viewer.
type CompareOutput struct {
	RelatorioComparativo RelatorioComparativo `json:"relatorio_comparativo"`
	AnaliseImagem1       AnaliseImagem        `json:"analise_imagem_1"`
	AnaliseImagem2       AnaliseImagem        `json:"analise_imagem_2"`
}

type RelatorioComparativo struct {
	IntervaloTempo                string                        `json:"intervalo_tempo" validate:"required"`
	ConsistenciaDados             ConsistenciaDados             `json:"consistencia_dados"`
	ResumoDescritivoEvolucao      string                        `json:"resumo_descritivo_evolucao" validate:"required"`
	AnaliseQuantitativaProgressao AnaliseQuantitativaProgressao `json:"analise_quantitativa_progressao"`
}

type ConsistenciaDados struct {
	AlertaQualidade string `json:"alerta_qualidade,omitempty"`
}

type AnaliseQuantitativaProgressao struct {
	DeltaAreaTotalAfetada string         `json:"delta_area_total_afetada" validate:"required"`
	DeltaColoracao        DeltaColoracao `json:"delta_coloracao"`
	DeltaEdema            string         `json:"delta_edema" validate:"required"`
	DeltaTextura          string         `json:"delta_textura" validate:"required"`
}

type DeltaColoracao struct {
	MudancaAreaHiperpigmentacao string `json:"mudanca_area_hiperpigmentacao" validate:"required"`
	MudancaAreaEritemaRubor     string `json:"mudanca_area_eritema_rubor" validate:"required"`
}

type AnaliseImagem struct {
	AvaliacaoQualidade             AvaliacaoQualidade   `json:"avaliacao_qualidade"`
	AnaliseDimensional             AnaliseDimensional   `json:"analise_dimensional"`
	AnaliseColorimetrica           AnaliseColorimetrica `json:"analise_colorimetrica"`
	AnaliseTexturaECaracteristicas AnaliseTextura       `json:"analise_textura_e_caracteristicas"`
	AnaliseHistograma              AnaliseHistograma    `json:"analise_histograma"`
}

type AvaliacaoQualidade struct {
	Iluminacao               string `json:"iluminacao" validate:"required"`
	Foco                     string `json:"foco" validate:"required"`
	EscalaReferenciaPresente string `json:"escala_referencia_presente" validate:"required"`
	Fundo                    string `json:"fundo" validate:"required"`
}

type AnaliseDimensional struct {
	AreaTotalAfetada string `json:"area_total_afetada" validate:"required"`
	UnidadeMedida    string `json:"unidade_medida" validate:"required"`
}

type AnaliseColorimetrica struct {
	CoresDominantes []CorDominante `json:"cores_dominantes" validate:"required,dive"`
}

type CorDominante struct {
	Cor            string   `json:"cor" validate:"required"`
	HexAproximado  string   `json:"hex_aproximado" validate:"required"`
	AreaPercentual *float64 `json:"area_percentual" validate:"required"`
}

type AnaliseTextura struct {
	Edema             string `json:"edema" validate:"required"`
	Descamacao        string `json:"descamacao" validate:"required"`
	BrilhoSuperficial string `json:"brilho_superficial" validate:"required"`
	BordasLesao       string `json:"bordas_lesao" validate:"required"`
}

type AnaliseHistograma struct {
	DistribuicaoCores []FaixaCor `json:"distribuicao_cores" validate:"required,dive"`
}

type FaixaCor struct {
	FaixaCor                 string   `json:"faixa_cor" validate:"required"`
	ContagemPixelsPercentual *float64 `json:"contagem_pixels_percentual" validate:"required"`
}

func checkCompare(in CompareInput) error {
	for _, f := range []struct{ name, value string }{
		{"report1Content", in.Report1Content},
		{"report2Content", in.Report2Content},
		{"report1Date", in.Report1Date},
		{"report2Date", in.Report2Date},
	} {
		if err := required(f.name, f.value); err != nil {
			return err
		}
	}
	if err := dataURI("image1DataUri", in.Image1DataURI); err != nil {
		return err
	}
	return dataURI("image2DataUri", in.Image2DataURI)
}

var comparePrompt = genai.MustPrompt(FlowCompareReports, `Você é um especialista em tratamento de feridas e análise de imagens clínicas.

Compare as duas avaliações de ferida abaixo, registradas em datas diferentes, e produza uma análise comparativa objetiva em português.

Relatório 1 ({{.Report1Date}}):
{{.Report1Content}}
Imagem 1: {{media .Image1DataURI}}

Relatório 2 ({{.Report2Date}}):
{{.Report2Content}}
Imagem 2: {{media .Image2DataURI}}

Para cada imagem avalie a qualidade (iluminação, foco, presença de escala de referência, fundo), estime a área total afetada com a unidade de medida, liste as cores dominantes com o hex aproximado e a porcentagem de área, descreva textura e características (edema, descamação, brilho superficial, bordas da lesão) e a distribuição de cores do histograma.
Em seguida informe o intervalo de tempo entre os relatórios, qualquer alerta de qualidade que afete a comparação, um resumo descritivo da evolução e a progressão quantitativa (variação da área total, da coloração, do edema e da textura).
`)

var (
	qualidadeSchema = object(map[string]any{
		"iluminacao":                 str(),
		"foco":                       str(),
		"escala_referencia_presente": str(),
		"fundo":                      str(),
	}, "iluminacao", "foco", "escala_referencia_presente", "fundo")

	imagemSchema = object(map[string]any{
		"avaliacao_qualidade": qualidadeSchema,
		"analise_dimensional": object(map[string]any{
			"area_total_afetada": str(),
			"unidade_medida":     str(),
		}, "area_total_afetada", "unidade_medida"),
		"analise_colorimetrica": object(map[string]any{
			"cores_dominantes": array(object(map[string]any{
				"cor":             str(),
				"hex_aproximado":  str(),
				"area_percentual": num(),
			}, "cor", "hex_aproximado", "area_percentual")),
		}, "cores_dominantes"),
		"analise_textura_e_caracteristicas": object(map[string]any{
			"edema":              str(),
			"descamacao":         str(),
			"brilho_superficial": str(),
			"bordas_lesao":       str(),
		}, "edema", "descamacao", "brilho_superficial", "bordas_lesao"),
		"analise_histograma": object(map[string]any{
			"distribuicao_cores": array(object(map[string]any{
				"faixa_cor":                  str(),
				"contagem_pixels_percentual": num(),
			}, "faixa_cor", "contagem_pixels_percentual")),
		}, "distribuicao_cores"),
	}, "avaliacao_qualidade", "analise_dimensional", "analise_colorimetrica", "analise_textura_e_caracteristicas", "analise_histograma")

	compareSchema = object(map[string]any{
		"relatorio_comparativo": object(map[string]any{
			"intervalo_tempo": str(),
			"consistencia_dados": object(map[string]any{
				"alerta_qualidade": str(),
			}),
			"resumo_descritivo_evolucao": str(),
			"analise_quantitativa_progressao": object(map[string]any{
				"delta_area_total_afetada": str(),
				"delta_coloracao": object(map[string]any{
					"mudanca_area_hiperpigmentacao": str(),
					"mudanca_area_eritema_rubor":    str(),
				}, "mudanca_area_hiperpigmentacao", "mudanca_area_eritema_rubor"),
				"delta_edema":   str(),
				"delta_textura": str(),
			}, "delta_area_total_afetada", "delta_coloracao", "delta_edema", "delta_textura"),
		}, "intervalo_tempo", "consistencia_dados", "resumo_descritivo_evolucao", "analise_quantitativa_progressao"),
		"analise_imagem_1": imagemSchema,
		"analise_imagem_2": imagemSchema,
	}, "relatorio_comparativo", "analise_imagem_1", "analise_imagem_2")
)
