package deploy

import "time"

// HistoryEntry records one successful deployment.
type HistoryEntry struct {
	Target     string    `json:"target"`
	Digest     string    `json:"digest"`
	Archive    string    `json:"archive"`
	Size       int64     `json:"size"`
	Files      int       `json:"files"`
	DeployedAt time.Time `json:"deployed_at"`
}

// HistoryStorage persists successful deployments so unchanged
// trees can be skipped on the next run.
type HistoryStorage interface {
	// Record stores an entry for a completed deployment
	Record(entry HistoryEntry) error
	// Last returns the most recent entry for a target, or nil when there is none
	Last(targetName string) (*HistoryEntry, error)
	// List returns all entries, oldest first
	List() ([]HistoryEntry, error)
	// Clear removes all entries
	Clear() error
}
