package store

import (
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/features"
)

// Row is one row of a Table, with values in column order.
type Row []interface{}

// Batch holds every row produced for one entity. The worker which produced
// it has finished with the entity; Rows is keyed by base table name.
type Batch struct {
	Class     wdhistory.Classification
	EntityID  string
	File      string
	Revisions int
	Changes   int
	Rows      map[string][]Row
}

// NewBatch returns an empty Batch for entityID.
func NewBatch(entityID string) *Batch {
	return &Batch{EntityID: entityID, Rows: make(map[string][]Row)}
}

// Add appends rows to table t.
func (b *Batch) Add(t *Table, rows ...Row) {
	b.Rows[t.Name] = append(b.Rows[t.Name], rows...)
}

// Len returns the number of rows in b.
func (b *Batch) Len() int {
	n := 0
	for _, rows := range b.Rows {
		n += len(rows)
	}
	return n
}

// AddRevision adds the revision row of rev.
func (b *Batch) AddRevision(page *wdhistory.Page, rev *wdhistory.RawRevision, changes int, decodable bool) {
	b.Add(RevisionTable, Row{
		rev.ID,
		page.EntityID,
		rev.ParentID,
		page.File,
		rev.Timestamp.UTC(),
		rev.Contributor.ID,
		rev.Contributor.Name(),
		rev.Contributor.Class().String(),
		rev.Comment,
		int64(changes),
		decodable,
	})
}

// AddChanges adds each change to the table of its category.
func (b *Batch) AddChanges(changes []wdhistory.Change) {
	for i := range changes {
		c := &changes[i]
		t := TableFor(c.Category())
		b.Add(t, ChangeRow(c))
	}
}

func changeFields(c *wdhistory.Change) Row {
	return Row{
		c.EntityID,
		c.Timestamp.UTC(),
		c.UserID,
		c.Actor.String(),
		c.Kind.String(),
		nullable(c.Old),
		nullable(c.New),
		c.OldDatatype,
		c.NewDatatype,
		c.OldHash,
		c.NewHash,
	}
}

func nullable(v wdhistory.Value) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}

// ChangeRow converts c to a row of TableFor(c.Category()).
func ChangeRow(c *wdhistory.Change) Row {
	var row Row
	switch c.Category() {
	case wdhistory.CategoryQualifier:
		row = Row{c.RevisionID, c.PropertyID, c.ValueID, c.Snak.PropertyID, c.Snak.Hash}
	case wdhistory.CategoryReference:
		row = Row{c.RevisionID, c.PropertyID, c.ValueID, c.Snak.ReferenceHash, c.Snak.PropertyID, c.Snak.Hash}
	case wdhistory.CategoryMetadata:
		row = Row{c.RevisionID, c.PropertyID, c.ValueID, c.MetadataKey}
	default:
		row = Row{c.RevisionID, c.PropertyID, c.ValueID, c.Target}
	}
	row = append(row, changeFields(c)...)
	if c.Category() == wdhistory.CategoryValue {
		var mag interface{}
		if c.Magnitude != nil {
			mag = *c.Magnitude
		}
		row = append(row, mag, c.Reverted, c.Reversion)
	}
	return row
}

// AddFeatures adds feature rows.
func (b *Batch) AddFeatures(f *features.Rows) {
	for _, r := range f.Text {
		b.Add(TextFeatureTable, append(keyRow(r.Key),
			int64(r.LengthDiff), int64(r.TokenCountOld), int64(r.TokenCountNew), r.TokenOverlap,
			r.OldInNew, r.NewInOld, int64(r.Levenshtein), r.EditDistanceRatio,
			r.CompleteReplacement, r.CaseOnly, r.SignificantPrefix, r.SignificantSuffix))
	}
	for _, r := range f.Time {
		b.Add(TimeFeatureTable, append(keyRow(r.Key),
			r.DayDiff, r.YearChanged, r.MonthChanged, r.DayChanged, r.SignChange,
			int64(r.PrecisionDiff), r.CalendarChanged))
	}
	for _, r := range f.Quantity {
		b.Add(QuantityFeatureTable, append(keyRow(r.Key),
			r.Diff, r.RelativeDiff, r.SignChange, r.WholeNumberChange,
			int64(r.PrecisionDiff), int64(r.SharedPrefix), r.UnitChanged))
	}
	for _, r := range f.Globe {
		b.Add(GlobeFeatureTable, append(keyRow(r.Key),
			r.DistanceKm, r.RelativeLatitude, r.RelativeLongitude, r.LatitudeSign, r.LongitudeSign,
			r.OldGeohash, r.NewGeohash, int64(r.GeohashPrefix)))
	}
	for _, r := range f.Entity {
		b.Add(EntityFeatureTable, append(keyRow(r.Key),
			r.OldLabel, r.NewLabel, r.OldDescription, r.NewDescription,
			r.OldSubclassOfNew, r.NewSubclassOfOld, r.OldPartOfNew, r.NewPartOfOld,
			r.OldLocatedInNew, r.NewLocatedInOld))
	}
}

func keyRow(k features.Key) Row {
	return Row{k.RevisionID, k.PropertyID, k.ValueID}
}

// PropertyMonth counts the changes of one property of an entity in one
// calendar month.
type PropertyMonth struct {
	PropertyID int64
	Month      string
	Changes    int64
	Creates    int64
	Deletes    int64
	Updates    int64
	Reverted   int64
}

// MonthOf returns the "2006-01" bucket of t.
func MonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PropertyMonths buckets value changes by property and month. The result is
// ordered by first appearance.
func PropertyMonths(changes []wdhistory.Change) []PropertyMonth {
	type key struct {
		pid   int64
		month string
	}
	idx := make(map[key]int)
	var out []PropertyMonth
	for i := range changes {
		c := &changes[i]
		if c.Category() != wdhistory.CategoryValue {
			continue
		}
		k := key{c.PropertyID, MonthOf(c.Timestamp)}
		j, ok := idx[k]
		if !ok {
			j = len(out)
			idx[k] = j
			out = append(out, PropertyMonth{PropertyID: k.pid, Month: k.month})
		}
		pm := &out[j]
		pm.Changes++
		switch {
		case c.Kind.IsCreate():
			pm.Creates++
		case c.Kind.IsDelete():
			pm.Deletes++
		default:
			pm.Updates++
		}
		if c.Reverted {
			pm.Reverted++
		}
	}
	return out
}

// AddPropertyMonths adds the entity_property_time_stats rows.
func (b *Batch) AddPropertyMonths(pms []PropertyMonth) {
	for _, pm := range pms {
		b.Add(PropertyTimeStatsTable, Row{b.EntityID, pm.PropertyID, pm.Month, pm.Changes, pm.Creates, pm.Deletes, pm.Updates, pm.Reverted})
	}
}

// AddStats adds the entity_stats row.
func (b *Batch) AddStats(s *wdhistory.EntityStats) {
	b.Add(EntityStatsTable, Row{
		s.EntityID,
		s.Label,
		s.Revisions,
		s.Changes,
		s.Undecodable,
		s.ByActor[wdhistory.ActorUser],
		s.ByActor[wdhistory.ActorBot],
		s.ByActor[wdhistory.ActorAnonymous],
		s.RevertedEdits,
		s.RevertedCreates,
		s.RevertedDeletes,
		s.RevertedUpdates,
		s.Reversions,
		s.FirstEdit.UTC(),
		s.LastEdit.UTC(),
	})
}
