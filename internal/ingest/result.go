package ingest

import (
	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/domain/workflow"
)

// Outcome summarises how a document's run ended
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Result is the per-document record returned by every call surface. Failures are
// carried in Error; they never escape as Go errors.
type Result struct {
	IngestID    string                `json:"ingest_id"`
	BatchID     string                `json:"batch_id,omitempty"`
	Filename    string                `json:"filename"`
	Vendor      invoice.Vendor        `json:"vendor"`
	Fingerprint string                `json:"fingerprint,omitempty"`
	Stage       workflow.State        `json:"stage"`
	FailedStage workflow.State        `json:"failed_stage,omitempty"`
	Outcome     Outcome               `json:"outcome"`
	Success     bool                  `json:"success"`
	Duplicate   bool                  `json:"duplicate"`
	PersistedID string                `json:"persisted_id,omitempty"`
	Error       *ingesterr.Error      `json:"error,omitempty"`
	Warnings    []ingesterr.Warning   `json:"warnings"`
	Package     *invoice.Package      `json:"package,omitempty"`
	History     []workflow.Transition `json:"history,omitempty"`
}

// Failed reports whether the run ended in FAILED
func (r *Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// Summary counts outcomes across a batch
type Summary struct {
	Total      int `json:"total"`
	Done       int `json:"done"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Warnings   int `json:"warnings"`
}

// Summarize counts the outcomes of results
func Summarize(results []*Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r == nil {
			continue
		}
		switch r.Outcome {
		case OutcomeDone:
			s.Done++
		case OutcomeDuplicate:
			s.Duplicates++
		case OutcomeFailed:
			s.Failed++
		}
		s.Warnings += len(r.Warnings)
	}
	return s
}
