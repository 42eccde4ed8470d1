package entity

import (
	"time"

	"github.com/google/uuid"
)

// PipeRun is one ledger entry for a document routed through a pipe mode.
type PipeRun struct {
	ID           uuid.UUID  `json:"id"`
	DocumentPath string     `json:"document_path"`
	ContentHash  string     `json:"content_hash"`
	Format       string     `json:"format"`
	Mode         string     `json:"mode"`
	ParseType    *string    `json:"parse_type,omitempty"`
	Status       string     `json:"status"`
	StartPage    int        `json:"start_page"`
	EndPage      *int       `json:"end_page,omitempty"`
	Lang         *string    `json:"lang,omitempty"`
	Version      string     `json:"version"`
	PageCount    int        `json:"page_count"`
	OutputPath   *string    `json:"output_path,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration is the run's wall time, or zero while it is still running.
func (r *PipeRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
