package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DatazoneRoundRobin is the default datazone value that alternates 1,2,1,2 across rows.
const DatazoneRoundRobin = "rr"

// DefaultCSVHeader is the minimal header that works when every other field has a batch default.
const DefaultCSVHeader = "vcpus,memory,disk,ip_address,extra_tags"

// Defaults are the batch-level values used when a CSV row leaves a field out.
type Defaults struct {
	Status        string `json:"status,omitempty"`
	Tenant        string `json:"tenant,omitempty"`
	Cluster       string `json:"cluster,omitempty"`
	Datazone      string `json:"datazone,omitempty"`
	AlertType     string `json:"prom_alert_type,omitempty"`
	Env           string `json:"env,omitempty"`
	Platform      string `json:"platform,omitempty"`
	Role          string `json:"role,omitempty"`
	Backup        string `json:"backup,omitempty"`
	BackupOffsite string `json:"backup_offsite,omitempty"`
}

// BulkRequest is a CSV batch submitted by an operator.
type BulkRequest struct {
	CSV         string   `json:"csv"`
	Defaults    Defaults `json:"defaults"`
	Commit      bool     `json:"commit"`
	SubmittedBy string   `json:"-"`
	APIKeyID    string   `json:"-"` // empty for OIDC sessions and the CLI
}

// RowOutcome is the result of provisioning one CSV row.
type RowOutcome struct {
	Line        int               `json:"line"`
	Success     bool              `json:"success"`
	Hostname    string            `json:"hostname,omitempty"`
	Message     string            `json:"message"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Step        string            `json:"step,omitempty"`
	Row         map[string]string `json:"row,omitempty"`
	Compensated []string          `json:"compensated,omitempty"`
}

// Outcomes is stored as a JSON array.
type Outcomes []RowOutcome

// Value implements driver.Valuer.
func (o Outcomes) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]RowOutcome(o))
	return string(b), err
}

// Scan implements sql.Scanner.
func (o *Outcomes) Scan(src any) error {
	return scanJSON(src, o)
}

// BatchRun is the audit record of one submitted batch.
type BatchRun struct {
	ID          string    `json:"id" db:"id"`
	Commit      bool      `json:"commit" db:"commit_changes"`
	SubmittedBy string    `json:"submitted_by" db:"submitted_by"`
	APIKeyID    string    `json:"api_key_id,omitempty" db:"api_key_id"`
	Payload     string    `json:"payload" db:"payload"`
	Rows        int       `json:"rows" db:"rows_total"`
	Succeeded   int       `json:"succeeded" db:"succeeded"`
	Failed      int       `json:"failed" db:"failed"`
	Outcomes    Outcomes  `json:"outcomes" db:"outcomes"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
}
