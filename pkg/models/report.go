package models

import "time"

// BatchFailure is a batch that did not commit after its retries.
type BatchFailure struct {
	BatchID  int           `json:"batchId"`
	Kind     OperationKind `json:"kind"`
	IDs      []string      `json:"ids"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error"`
}

// OperationSample is a preview of one operation, used in dry-run reports.
type OperationSample struct {
	Kind     OperationKind  `json:"kind"`
	ID       string         `json:"id"`
	Changes  map[string]any `json:"changes,omitempty"`
	Preserve []string       `json:"preserve,omitempty"`
}

// ExecutionReport summarises one Batch Executor run.
type ExecutionReport struct {
	DryRun    bool `json:"dryRun"`
	Planned   int  `json:"planned"`
	Noops     int  `json:"noops"`
	Resumed   int  `json:"resumed"`
	Batches   int  `json:"batches"`
	Committed int  `json:"committed"`
	Created   int  `json:"created"`
	Updated   int  `json:"updated"`
	Deleted   int  `json:"deleted"`
	// SkippedDependents counts operations dropped because a dependency failed.
	SkippedDependents int               `json:"skippedDependents"`
	Failures          []BatchFailure    `json:"failures,omitempty"`
	Samples           []OperationSample `json:"samples,omitempty"`
	Checkpoint        string            `json:"checkpoint,omitempty"`
	Cancelled         bool              `json:"cancelled"`
}

// Mutated is the number of records changed by committed batches.
func (r *ExecutionReport) Mutated() int {
	return r.Created + r.Updated + r.Deleted
}

// ClusterEntry is the audit line for one resolved duplicate cluster.
type ClusterEntry struct {
	SurvivorID   string   `json:"survivorId"`
	DeletedIDs   []string `json:"deletedIds"`
	MergedFields []string `json:"mergedFields"`
}

// ReviewItem is an incoming record the engine would not resolve on its own.
type ReviewItem struct {
	// Position is the record's zero-based position in the input stream.
	Position        int          `json:"position"`
	Name            string       `json:"name"`
	CorporateNumber string       `json:"corporateNumber,omitempty"`
	Outcome         MatchOutcome `json:"outcome,omitempty"`
	Candidates      []string     `json:"candidates,omitempty"`
	Reason          string       `json:"reason"`
}

// ResolutionReport is the structured summary of a run. Counts describe the
// plan; Execution describes what was committed.
type ResolutionReport struct {
	Run           string              `json:"run"`
	StartedAt     time.Time           `json:"startedAt"`
	FinishedAt    time.Time           `json:"finishedAt"`
	Created       int                 `json:"created"`
	Updated       int                 `json:"updated"`
	Merged        int                 `json:"merged"`
	Deleted       int                 `json:"deleted"`
	Ambiguous     int                 `json:"ambiguous"`
	Skipped       int                 `json:"skipped"`
	LowConfidence int                 `json:"lowConfidence"`
	Clusters      []ClusterEntry      `json:"clusters,omitempty"`
	Conflicted    []ConflictedCluster `json:"conflicted,omitempty"`
	Review        []ReviewItem        `json:"review,omitempty"`
	Execution     *ExecutionReport    `json:"execution,omitempty"`
}
