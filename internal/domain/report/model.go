package report

import "time"

// Job lifecycle statuses.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// KindReport is the only job kind today.
const KindReport = "report"

// Report is a generated clinician note for one intake thread.
type Report struct {
	ReportID  string    `json:"report_id"`
	ThreadID  string    `json:"thread_id"`
	RiskLevel string    `json:"risk_level"`
	VisitType string    `json:"visit_type"`
	Text      string    `json:"report_text"`
	CreatedAt time.Time `json:"created_at"`
}

// Job tracks one background report-generation run.
type Job struct {
	JobID     string    `json:"job_id"`
	ThreadID  string    `json:"thread_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	UpdatedAt time.Time `json:"updated_at"`
}
