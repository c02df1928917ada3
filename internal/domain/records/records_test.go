package records

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai"
	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

const photo = "data:image/jpeg;base64,aGVsbG8="

const imageJSON = `{
  "avaliacao_qualidade": {"iluminacao": "Adequada", "foco": "Nitido", "escala_referencia_presente": "Nao", "fundo": "Neutro"},
  "analise_dimensional": {"area_total_afetada": "25.8", "unidade_medida": "cm2"},
  "analise_colorimetrica": {"cores_dominantes": [{"cor": "Vermelho", "hex_aproximado": "#C0392B", "area_percentual": 60}]},
  "analise_textura_e_caracteristicas": {"edema": "Leve", "descamacao": "Ausente", "brilho_superficial": "Moderado", "bordas_lesao": "Irregulares"},
  "analise_histograma": {"distribuicao_cores": [{"faixa_cor": "Vermelhos", "contagem_pixels_percentual": 45}]}
}`

var analysisJSON = `{
  "relatorio_comparativo": {
    "intervalo_tempo": "14 dias",
    "consistencia_dados": {},
    "resumo_descritivo_evolucao": "Evolucao positiva",
    "analise_quantitativa_progressao": {
      "delta_area_total_afetada": "-15.5%",
      "delta_coloracao": {"mudanca_area_hiperpigmentacao": "Reducao de 5%", "mudanca_area_eritema_rubor": "Reducao de 10%"},
      "delta_edema": "Reducao moderada",
      "delta_textura": "Melhora"
    }
  },
  "analise_imagem_1": ` + imageJSON + `,
  "analise_imagem_2": ` + imageJSON + `
}`

type stubComparer struct {
	out   *flows.CompareOutput
	err   error
	calls int
	last  flows.CompareInput
}

func (s *stubComparer) CompareReports(_ context.Context, in flows.CompareInput) (*flows.CompareOutput, error) {
	s.calls++
	s.last = in
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type testEnv struct {
	client   *docstore.Client
	svc      *Service
	roles    *RoleStore
	comparer *stubComparer
	clock    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client := docstore.NewClient(docstore.NewMemoryBackend(), nil, nil, zerolog.Nop())
	cmp := &stubComparer{out: &flows.CompareOutput{}}
	if err := json.Unmarshal([]byte(analysisJSON), cmp.out); err != nil {
		t.Fatalf("analysis fixture: %v", err)
	}
	env := &testEnv{
		client:   client,
		svc:      NewService(client, cmp),
		roles:    NewRoleStore(client),
		comparer: cmp,
		clock:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	env.svc.now = func() time.Time {
		env.clock = env.clock.Add(time.Hour)
		return env.clock
	}
	return env
}

func anamnesis(name string) AnamnesisRecord {
	return AnamnesisRecord{
		PatientName: name,
		Complaint:   "Ferida no calcanhar direito",
		History:     "Diabetes tipo 2 ha dez anos",
	}
}

func report(patientID, content string) ReportRecord {
	return ReportRecord{
		PatientName:   "Maria Silva",
		PatientID:     patientID,
		ReportContent: content,
		WoundType:     "pressure ulcer",
		Severity:      SeverityMedium,
		Progress:      40,
		ImageDataURI:  photo,
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		path string
		want Kind
		ok   bool
	}{
		{"users/u1", KindRole, true},
		{"users/u1/anamnesis/a1", KindAnamnesis, true},
		{"users/u1/reports/r1", KindReport, true},
		{"users/u1/comparisons/c1", KindComparison, true},
		{"users/u1/notes/n1", "", false},
		{"users", "", false},
		{"images/u1/wounds/w1", "", false},
	}
	for _, tt := range tests {
		got, ok := KindOf(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("KindOf(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDecode_RejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		snap docstore.Snapshot
	}{
		{"bad role", docstore.Snapshot{Path: "users/u1", Data: map[string]any{"role": "admin"}}},
		{"report without image", docstore.Snapshot{Path: "users/u1/reports/r1", Data: map[string]any{"patientName": "Ana"}}},
		{"wrong type", docstore.Snapshot{Path: "users/u1/anamnesis/a1", Data: map[string]any{"patientName": 42}}},
		{"not a record path", docstore.Snapshot{Path: "other/x", Data: map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(&tt.snap); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}

	rec, err := Decode(&docstore.Snapshot{Path: "users/u1", Data: map[string]any{"role": "patient"}})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if r, ok := rec.(RoleRecord); !ok || r.Role != session.RolePatient {
		t.Errorf("unexpected record %#v", rec)
	}
}

func TestRoleStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, ok, err := env.roles.GetRole(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected no role, got ok=%v err=%v", ok, err)
	}
	if err := env.roles.SetRole(ctx, "u1", session.Role("admin")); !errors.Is(err, session.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := env.roles.SetRole(ctx, "u1", session.RoleProfessional); err != nil {
		t.Fatalf("SetRole() error: %v", err)
	}
	role, ok, err := env.roles.GetRole(ctx, "u1")
	if err != nil || !ok || role != session.RoleProfessional {
		t.Fatalf("expected professional, got %q ok=%v err=%v", role, ok, err)
	}
	resolved, err := env.roles.ResolveRole(ctx, "u1")
	if err != nil || resolved != "professional" {
		t.Fatalf("ResolveRole() = %q, %v", resolved, err)
	}

	if err := env.client.System().Set(ctx, "users/u2", map[string]any{"role": "admin"}, docstore.SetOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := env.roles.GetRole(ctx, "u2"); err != nil || ok {
		t.Fatalf("invalid stored role must read as missing, got ok=%v err=%v", ok, err)
	}
}

func TestService_Anamnesis(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateAnamnesis(ctx, "pro1", anamnesis("Maria Silva"))
	if err != nil {
		t.Fatalf("CreateAnamnesis() error: %v", err)
	}
	if first.Data.ProfessionalID != "pro1" || first.Data.CreatedAt == "" {
		t.Errorf("expected owner and timestamp to be set, got %+v", first.Data)
	}
	if !strings.HasPrefix(first.Path, "users/pro1/anamnesis/") {
		t.Errorf("unexpected path %s", first.Path)
	}
	if _, err := env.svc.CreateAnamnesis(ctx, "pro1", anamnesis("Joao Costa")); err != nil {
		t.Fatalf("CreateAnamnesis() error: %v", err)
	}

	bad := anamnesis("M")
	if _, err := env.svc.CreateAnamnesis(ctx, "pro1", bad); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	list, err := env.svc.ListAnamnesis(ctx, "pro1")
	if err != nil {
		t.Fatalf("ListAnamnesis() error: %v", err)
	}
	if len(list) != 2 || list[0].Data.PatientName != "Joao Costa" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	other, err := env.svc.ListAnamnesis(ctx, "pro2")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no records for another professional, got %d (%v)", len(other), err)
	}
}

func TestService_ReportsByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, r := range []struct {
		pro, patient string
	}{
		{"pro1", "pat1"},
		{"pro2", "pat1"},
		{"pro1", "pat2"},
	} {
		if _, err := env.svc.CreateReport(ctx, r.pro, report(r.patient, "Evolucao")); err != nil {
			t.Fatalf("CreateReport() error: %v", err)
		}
	}

	mine, err := env.svc.ListReports(ctx, "pro1", session.RoleProfessional)
	if err != nil || len(mine) != 2 {
		t.Fatalf("expected 2 reports for pro1, got %d (%v)", len(mine), err)
	}
	forPatient, err := env.svc.ListReports(ctx, "pat1", session.RolePatient)
	if err != nil {
		t.Fatalf("ListReports() error: %v", err)
	}
	if len(forPatient) != 2 {
		t.Fatalf("expected 2 reports across professionals, got %d", len(forPatient))
	}
	if forPatient[0].Data.ProfessionalID != "pro2" {
		t.Errorf("expected newest first, got %+v", forPatient[0].Data)
	}
}

func TestService_CreateReportValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		mutate func(*ReportRecord)
	}{
		{"bad severity", func(r *ReportRecord) { r.Severity = "critical" }},
		{"progress over 100", func(r *ReportRecord) { r.Progress = 120 }},
		{"image not a data uri", func(r *ReportRecord) { r.ImageDataURI = "https://example.com/a.jpg" }},
		{"missing patient", func(r *ReportRecord) { r.PatientID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := report("pat1", "Conteudo")
			tt.mutate(&rec)
			if _, err := env.svc.CreateReport(context.Background(), "pro1", rec); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestService_CompareReports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older, err := env.svc.CreateReport(ctx, "pro1", report("pat1", "Primeiro relatorio"))
	if err != nil {
		t.Fatalf("CreateReport() error: %v", err)
	}
	newer, err := env.svc.CreateReport(ctx, "pro1", report("pat1", "Segundo relatorio"))
	if err != nil {
		t.Fatalf("CreateReport() error: %v", err)
	}

	entry, err := env.svc.CompareReports(ctx, "pro1", newer.ID, older.ID)
	if err != nil {
		t.Fatalf("CompareReports() error: %v", err)
	}
	if env.comparer.last.Report1Content != "Primeiro relatorio" || env.comparer.last.Report2Date != newer.Data.CreatedAt {
		t.Errorf("expected reports in chronological order, got %+v", env.comparer.last)
	}
	if entry.Data.Report1ID != older.ID || entry.Data.Analysis.RelatorioComparativo.IntervaloTempo != "14 dias" {
		t.Errorf("unexpected comparison %+v", entry.Data)
	}

	list, err := env.svc.ListComparisons(ctx, "pro1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected stored comparison, got %d (%v)", len(list), err)
	}

	if _, err := env.svc.CompareReports(ctx, "pro1", older.ID, older.ID); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for identical ids, got %v", err)
	}
	if _, err := env.svc.CompareReports(ctx, "pro1", older.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	env.comparer.err = genai.ErrModelUnavailable
	if _, err := env.svc.CompareReports(ctx, "pro1", older.ID, newer.ID); !errors.Is(err, genai.ErrModelUnavailable) {
		t.Fatalf("expected flow error, got %v", err)
	}
	if list, _ := env.svc.ListComparisons(ctx, "pro1"); len(list) != 1 {
		t.Errorf("failed comparison must not be stored, got %d", len(list))
	}
}

func TestService_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"Maria Silva", "maria silva ", "Joao Costa"} {
		if _, err := env.svc.CreateAnamnesis(ctx, "pro1", anamnesis(name)); err != nil {
			t.Fatalf("CreateAnamnesis() error: %v", err)
		}
	}
	if _, err := env.svc.CreateReport(ctx, "pro1", report("pat1", "x")); err != nil {
		t.Fatalf("CreateReport() error: %v", err)
	}

	st, err := env.svc.Stats(ctx, "pro1")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	want := Stats{Patients: 2, Anamnesis: 3, Reports: 1, Comparisons: 0}
	if *st != want {
		t.Errorf("Stats() = %+v, want %+v", *st, want)
	}
}

func newServer(t *testing.T, env *testEnv, errs *apperr.Emitter) *echo.Echo {
	t.Helper()
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-User"); uid != "" {
				claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}}
				c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims, "t")))
			}
			return next(c)
		}
	})
	NewHandler(env.svc, env.roles, errs).RegisterRoutes(api)
	return e
}

func do(e *echo.Echo, method, path, uid, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if uid != "" {
		req.Header.Set("X-Test-User", uid)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RoleGates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.roles.SetRole(ctx, "pro1", session.RoleProfessional)
	env.roles.SetRole(ctx, "pat1", session.RolePatient)
	e := newServer(t, env, apperr.NewEmitter())

	body := `{"patientName":"Maria Silva","complaint":"Ferida no calcanhar","history":"Diabetes ha dez anos"}`
	if rec := do(e, http.MethodPost, "/api/v1/anamnesis", "pro1", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/v1/anamnesis", "pat1", body); rec.Code != http.StatusForbidden {
		t.Fatalf("patient must not create anamnesis, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/anamnesis", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a caller, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/reports", "nobody", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("caller without a role must be rejected, got %d", rec.Code)
	}
}

func TestHandler_ReportsAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.roles.SetRole(ctx, "pro1", session.RoleProfessional)
	env.roles.SetRole(ctx, "pat1", session.RolePatient)
	e := newServer(t, env, apperr.NewEmitter())

	body, _ := json.Marshal(report("pat1", "Tecido de granulacao"))
	rec := do(e, http.MethodPost, "/api/v1/reports", "pro1", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created Entry[ReportRecord]
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := do(e, http.MethodGet, "/api/v1/reports/"+created.ID, "pro1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/reports/missing", "pro1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/v1/reports", "pat1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var forPatient []Entry[ReportRecord]
	json.Unmarshal(rec.Body.Bytes(), &forPatient)
	if len(forPatient) != 1 || forPatient[0].ID != created.ID {
		t.Fatalf("patient should see their report, got %+v", forPatient)
	}

	rec = do(e, http.MethodGet, "/api/v1/stats", "pro1", "")
	var st Stats
	json.Unmarshal(rec.Body.Bytes(), &st)
	if rec.Code != http.StatusOK || st.Reports != 1 {
		t.Fatalf("unexpected stats %d %+v", rec.Code, st)
	}

	if rec := do(e, http.MethodPost, "/api/v1/reports", "pro1", `{"patientName":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid report, got %d", rec.Code)
	}
}

func TestHTTPError_EmitsPermissionError(t *testing.T) {
	errs := apperr.NewEmitter()
	var got []*apperr.PermissionError
	errs.On(apperr.EventPermissionError, func(pe *apperr.PermissionError) { got = append(got, pe) })

	err := HTTPError(docstore.ErrPermissionDenied, errs, apperr.OpList, "users/u2/reports")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if len(got) != 1 || got[0].Operation != apperr.OpList || got[0].Path != "users/u2/reports" {
		t.Fatalf("unexpected emitted errors %+v", got)
	}

	tests := []struct {
		err  error
		code int
	}{
		{ErrInvalidRecord, http.StatusBadRequest},
		{&genai.ValidationError{Field: "notes", Message: "is required"}, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{genai.ErrModelUnavailable, http.StatusServiceUnavailable},
		{&genai.SchemaValidationError{Flow: "f", Err: errors.New("x")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if !errors.As(HTTPError(tt.err, nil, apperr.OpGet, "p"), &he) || he.Code != tt.code {
			t.Errorf("HTTPError(%v) = %d, want %d", tt.err, he.Code, tt.code)
		}
	}
}
