package wdhistory

import "time"

// EntityStats are the counters accumulated while folding over the revisions
// of one entity. They are persisted once, after the last revision.
type EntityStats struct {
	EntityID    string
	Label       string
	Revisions   int64
	ByActor     map[ActorClass]int64
	ByKind      map[ChangeKind]int64
	Changes     int64
	Undecodable int64

	RevertedEdits       int64
	RevertedCreates     int64
	RevertedDeletes     int64
	RevertedUpdates     int64
	Reversions          int64
	FirstEdit, LastEdit time.Time
}

// NewEntityStats returns zeroed stats for id.
func NewEntityStats(id string) *EntityStats {
	return &EntityStats{
		EntityID: id,
		ByActor:  make(map[ActorClass]int64),
		ByKind:   make(map[ChangeKind]int64),
	}
}

// AddRevision counts one revision by actor class and widens the edit span.
func (s *EntityStats) AddRevision(rev *RawRevision) {
	s.Revisions++
	s.ByActor[rev.Contributor.Class()]++
	if s.FirstEdit.IsZero() || rev.Timestamp.Before(s.FirstEdit) {
		s.FirstEdit = rev.Timestamp
	}
	if rev.Timestamp.After(s.LastEdit) {
		s.LastEdit = rev.Timestamp
	}
}

// AddChanges counts changes by kind.
func (s *EntityStats) AddChanges(changes []Change) {
	for i := range changes {
		s.ByKind[changes[i].Kind]++
	}
	s.Changes += int64(len(changes))
}
