package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgard/summarybot/internal/summarizer"
)

// State is the lifecycle state of the Runner.
type State string

// Runner states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Trigger names what started a run.
type Trigger string

// Run triggers.
const (
	TriggerSchedule Trigger = "schedule"
	TriggerCLI      Trigger = "cli"
	TriggerHTTP     Trigger = "http"
)

// Status is the outcome of one scope in a run.
type Status string

// Scope outcomes.
const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ScopeResult records what happened to one channel or category.
type ScopeResult struct {
	ScopeID   string        `json:"scope_id"`
	ScopeName string        `json:"scope_name"`
	Status    Status        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Messages  int           `json:"messages"`
	SummaryID int64         `json:"summary_id,omitempty"`
	Duration  time.Duration `json:"duration_ns"`

	items []summarizer.NewsItem
}

// Report is the outcome of a run.
type Report struct {
	RunID       string        `json:"run_id"`
	Trigger     Trigger       `json:"trigger"`
	State       State         `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Recovered   []ScopeResult `json:"recovered,omitempty"`
	Results     []ScopeResult `json:"results"`
	Digest      bool          `json:"digest"`
	Error       string        `json:"error,omitempty"`
}

// Counts tallies the scope results by status, recovered publications included.
func (r *Report) Counts() (succeeded, skipped, failed int) {
	for _, results := range [][]ScopeResult{r.Recovered, r.Results} {
		for _, res := range results {
			switch res.Status {
			case StatusSucceeded:
				succeeded++
			case StatusSkipped:
				skipped++
			case StatusFailed:
				failed++
			}
		}
	}
	return succeeded, skipped, failed
}

// Format renders the report for the admin channel.
func (r *Report) Format() string {
	var sb strings.Builder

	icon := "✅"
	if r.State == StateFailed {
		icon = "❌"
	}
	fmt.Fprintf(&sb, "%s **Summary run %s** (%s, %s)\n", icon, r.State, r.Trigger, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	if !r.WindowStart.IsZero() {
		fmt.Fprintf(&sb, "Window: %s to %s\n", r.WindowStart.UTC().Format(time.DateTime), r.WindowEnd.UTC().Format(time.DateTime))
	}
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.Error)
	}

	succeeded, skipped, failed := r.Counts()
	fmt.Fprintf(&sb, "Succeeded: %d | Skipped: %d | Failed: %d\n", succeeded, skipped, failed)

	for _, res := range r.Recovered {
		fmt.Fprintf(&sb, "- recovered summary %d for #%s: %s", res.SummaryID, res.ScopeName, res.Status)
		if res.Error != "" {
			fmt.Fprintf(&sb, " (%s: %s)", res.ErrorKind, res.Error)
		}
		sb.WriteString("\n")
	}
	for _, res := range r.Results {
		switch res.Status {
		case StatusFailed:
			fmt.Fprintf(&sb, "- #%s failed (%s): %s\n", res.ScopeName, res.ErrorKind, res.Error)
		case StatusSkipped:
			fmt.Fprintf(&sb, "- #%s skipped: %s\n", res.ScopeName, res.Reason)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
