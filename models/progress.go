package models

import "time"

// Stage is a per-listing pipeline state.
type Stage string

const (
	StagePending    Stage = "pending"
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageEnriching  Stage = "enriching"
	StagePersisted  Stage = "persisted"
	StageFailed     Stage = "failed"
	StageFiltered   Stage = "filtered"
	StageDone       Stage = "done"
)

// ProgressEvent is emitted to the run observer on every stage transition.
type ProgressEvent struct {
	RunID  string
	Source string
	URL    string
	Stage  Stage
	Reason string
	Seen   int
	Stored int
	Failed int
	Time   time.Time
}
