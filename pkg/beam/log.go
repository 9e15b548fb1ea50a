package beam

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepEntry is one record of the execution log: a single step attempt or
// settlement. StepIndex is allocated when the entry is appended, which for
// terminal entries is the moment the step settles, so indices order the log
// by settlement even across concurrent branches.
type StepEntry struct {
	StepID      string
	StepIndex   int
	Attempt     int // 1-based attempt number; 0 for a fallback-recovery entry
	Status      Status
	Input       any
	Output      any
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// ExecutionLog is the append-only trace of one run. It is returned to the
// caller on success and on failure alike, so partial progress can always be
// inspected.
type ExecutionLog struct {
	BeamID      string
	RunID       string
	StartedBy   string
	Status      Status
	Input       any
	Output      any
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	Entries     []StepEntry
}

// Result is the envelope returned by a run: terminal status, the beam
// output (or nil on failure), the failure reason (or nil on success), and
// the full execution log.
type Result struct {
	Status Status
	Output any
	Err    error
	Log    *ExecutionLog
}

// Recorder accumulates StepEntries for one run under a single mutex and
// hands out the run-global step index. One Recorder per run; never shared
// across runs.
type Recorder struct {
	mu   sync.Mutex
	log  *ExecutionLog
	next int
}

// NewRecorder starts the log for one run.
func NewRecorder(beamID, startedBy string, input any) *Recorder {
	return &Recorder{
		log: &ExecutionLog{
			BeamID:    beamID,
			RunID:     uuid.NewString(),
			StartedBy: startedBy,
			Input:     input,
			StartedAt: time.Now().UTC(),
		},
	}
}

// Append stores an entry, stamping it with the next step index.
func (r *Recorder) Append(e StepEntry) StepEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.StepIndex = r.next
	r.next++
	r.log.Entries = append(r.log.Entries, e)
	return e
}

// Finish seals the log with the run's terminal status and output and
// returns it. The Recorder must not be used afterwards.
func (r *Recorder) Finish(status Status, output any, err error) *ExecutionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Status = status
	r.log.Output = output
	if err != nil {
		r.log.Error = err.Error()
	}
	r.log.CompletedAt = time.Now().UTC()
	return r.log
}

// RunID exposes the run id for observers before the log is sealed.
func (r *Recorder) RunID() string {
	return r.log.RunID
}

// BeamID exposes the beam id for observers before the log is sealed.
func (r *Recorder) BeamID() string {
	return r.log.BeamID
}
