package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/intake"
	"github.com/intake/intake/internal/domain/report"
)

type memTranscripts struct {
	messages  map[string][]intake.StoredMessage
	snapshots map[string]json.RawMessage
}

func (m *memTranscripts) Transcript(_ context.Context, threadID string) ([]intake.StoredMessage, error) {
	return m.messages[threadID], nil
}

func (m *memTranscripts) SnapshotJSON(_ context.Context, threadID string) (json.RawMessage, error) {
	return m.snapshots[threadID], nil
}

type memReports struct {
	byThread map[string]*report.Report
}

func (m *memReports) Save(_ context.Context, threadID, riskLevel, visitType, text string) error {
	m.byThread[threadID] = &report.Report{
		ReportID: "r1", ThreadID: threadID,
		RiskLevel: riskLevel, VisitType: visitType, Text: text,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *memReports) LatestByThread(_ context.Context, threadID string) (*report.Report, error) {
	return m.byThread[threadID], nil
}

type clinFixture struct {
	e           *echo.Echo
	repo        *memRepo
	status      *memStatus
	transcripts *memTranscripts
	reports     *memReports
}

func newClinFixture() *clinFixture {
	f := &clinFixture{
		repo:   &memRepo{},
		status: &memStatus{},
		transcripts: &memTranscripts{
			messages:  make(map[string][]intake.StoredMessage),
			snapshots: make(map[string]json.RawMessage),
		},
		reports: &memReports{byThread: make(map[string]*report.Report)},
	}
	svc := NewService(f.repo, f.status, zerolog.Nop())
	f.e = echo.New()
	NewHandler(svc, f.transcripts, f.reports).RegisterRoutes(f.e.Group("/api/v1/clinician"))
	return f
}

func (f *clinFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestPendingEndpoint(t *testing.T) {
	f := newClinFixture()
	_ = f.repo.Create(context.Background(), "t1", KindEmergency, []byte(`{"triage":{}}`))

	rec := f.do(http.MethodGet, "/api/v1/clinician/pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var items []*Escalation
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Kind != KindEmergency {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestResolveEndpoint(t *testing.T) {
	f := newClinFixture()
	_ = f.repo.Create(context.Background(), "t1", KindEmergency, nil)
	escID := f.repo.items[0].EscID

	rec := f.do(http.MethodPost, "/api/v1/clinician/resolve",
		`{"thread_id":"t1","esc_id":"`+escID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !f.repo.items[0].Resolved {
		t.Error("escalation not resolved")
	}
	// Note defaults when the clinician leaves it blank.
	if f.repo.items[0].NurseNote != "Resolved" {
		t.Errorf("nurse note = %q", f.repo.items[0].NurseNote)
	}
	if len(f.status.calls) != 1 || f.status.calls[0].status != "active" {
		t.Errorf("status calls %+v", f.status.calls)
	}
}

func TestResolveEndpoint_RequiredFields(t *testing.T) {
	f := newClinFixture()

	rec := f.do(http.MethodPost, "/api/v1/clinician/resolve", `{"thread_id":"t1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCaseEndpoint(t *testing.T) {
	f := newClinFixture()
	f.transcripts.messages["t1"] = []intake.StoredMessage{
		{Role: intake.RoleUser, Text: "chest pain", CreatedAt: time.Now()},
		{Role: intake.RoleAssistant, Text: "call 911", CreatedAt: time.Now()},
	}
	f.transcripts.snapshots["t1"] = json.RawMessage(`{"current_phase":"handoff"}`)
	_ = f.reports.Save(context.Background(), "t1", "high", "emergency", "note text")
	_ = f.repo.Create(context.Background(), "t1", KindEmergency, []byte(`{}`))

	rec := f.do(http.MethodGet, "/api/v1/clinician/case/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out struct {
		ThreadID     string                 `json:"thread_id"`
		Messages     []intake.StoredMessage `json:"messages"`
		LatestReport *report.Report         `json:"latest_report"`
		Escalations  []*Escalation          `json:"escalations"`
		State        json.RawMessage        `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ThreadID != "t1" || len(out.Messages) != 2 || len(out.Escalations) != 1 {
		t.Errorf("unexpected case view %+v", out)
	}
	if out.LatestReport == nil || out.LatestReport.RiskLevel != "high" {
		t.Errorf("unexpected report %+v", out.LatestReport)
	}
	if !strings.Contains(string(out.State), "handoff") {
		t.Errorf("unexpected state %s", out.State)
	}
}
