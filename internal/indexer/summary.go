package indexer

import (
	"log/slog"
	"time"
)

// ReferenceImagesPerSecond is the measured embedding throughput used to
// estimate how long a pass will take.
const ReferenceImagesPerSecond = 280

// Summary reports what one sync pass found and did.
type Summary struct {
	Found     int `json:"found"`
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Retried   int `json:"retried"` // sentinel records re-embedded; counted in Unchanged too
	Failed    int `json:"failed"`  // images written with the zero sentinel
	Embedded  int `json:"embedded"`

	Elapsed     time.Duration `json:"elapsed"`
	Estimated   time.Duration `json:"estimated"`
	DryRun      bool          `json:"dry_run"`
	NothingToDo bool          `json:"nothing_to_do"`
}

// Throughput returns embedded images per second, or 0 when nothing ran.
func (s Summary) Throughput() float64 {
	if s.Embedded == 0 || s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Embedded) / s.Elapsed.Seconds()
}

// LogValue groups the counters in structured logs.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("found", s.Found),
		slog.Int("new", s.New),
		slog.Int("modified", s.Modified),
		slog.Int("removed", s.Removed),
		slog.Int("unchanged", s.Unchanged),
		slog.Int("retried", s.Retried),
		slog.Int("failed", s.Failed),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// EstimateDuration returns the expected embedding time for n images.
func EstimateDuration(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / ReferenceImagesPerSecond * float64(time.Second))
}

// OutcomeKind classifies the result of a pass.
type OutcomeKind int

const (
	// OutcomeNoop means the store was left untouched.
	OutcomeNoop OutcomeKind = iota
	// OutcomeUpdated means a new store was written.
	OutcomeUpdated
	// OutcomeFailed means the pass was abandoned; the prior store stands.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoop:
		return "noop"
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of Run.
type Outcome struct {
	Kind    OutcomeKind
	Summary Summary
	Err     error
}
