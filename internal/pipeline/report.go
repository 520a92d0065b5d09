package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/DeusData/odoo-graph/internal/changes"
	"github.com/DeusData/odoo-graph/internal/diff"
	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
	"github.com/DeusData/odoo-graph/internal/resolve"
)

// FileCounts tallies the files of a run.
type FileCounts struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// FragmentCounts tallies extraction output.
type FragmentCounts struct {
	Models int `json:"models"`
	Views  int `json:"views"`
	Mixins int `json:"mixins"`
}

// Report is the outcome of one run.
type Report struct {
	RunID      string         `json:"run_id"`
	Project    string         `json:"project"`
	Mode       changes.Mode   `json:"mode"`
	Status     errs.Status    `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Files      FileCounts     `json:"files"`
	Fragments  FragmentCounts `json:"fragments"`

	ModelsTouched     int `json:"models_touched"`
	ViewsTouched      int `json:"views_touched"`
	ModulesTouched    int `json:"modules_touched"`
	TransientFiltered int `json:"transient_filtered"`

	Ops            diff.Stats    `json:"ops"`
	Batches        int           `json:"batches"`
	BatchesApplied int           `json:"batches_applied"`
	Errors         []errs.Record `json:"errors,omitempty"`
}

func newReport(project string, mode changes.Mode) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Project:   project,
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

func (r *Report) addError(err error) {
	r.Errors = append(r.Errors, errs.ToRecord(err))
}

func (r *Report) fail(err error) {
	r.addError(err)
	r.Status = errs.StatusFailed
	r.DurationMS = time.Since(r.StartedAt).Milliseconds()
}

// finish settles the status of a run that reached the fingerprint commit.
func (r *Report) finish() {
	r.Status = errs.StatusSuccess
	if len(r.Errors) > 0 {
		r.Status = errs.StatusPartial
	}
	r.DurationMS = time.Since(r.StartedAt).Milliseconds()
}

// touched counts the distinct entities the write set changed.
func (r *Report) touched(out *resolve.Output, plan *diff.Plan) {
	seen := make(map[entity.NodeRef]bool)
	for _, u := range plan.Units {
		if seen[u.Owner] {
			continue
		}
		seen[u.Owner] = true
		switch u.Owner.Label {
		case entity.LabelModel:
			r.ModelsTouched++
		case entity.LabelView:
			r.ViewsTouched++
		case entity.LabelModule:
			r.ModulesTouched++
		}
	}
	if out != nil {
		r.Fragments.Mixins = out.Stats.Mixins
	}
}

// Failed reports whether the run aborted.
func (r *Report) Failed() bool {
	return r.Status == errs.StatusFailed
}
