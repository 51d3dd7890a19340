// Package diff turns two consecutive snapshots of an entity into the ordered
// list of atomic changes between them.
package diff

import (
	"sort"
	"time"

	"github.com/pilosa/wdhistory"
)

// RevisionMeta is copied onto every Change produced for a revision.
type RevisionMeta struct {
	EntityID   string
	RevisionID int64
	Timestamp  time.Time
	Comment    string
	UserID     int64
	Actor      wdhistory.ActorClass
}

// MetaOf returns the RevisionMeta of rev.
func MetaOf(entityID string, rev *wdhistory.RawRevision) RevisionMeta {
	return RevisionMeta{
		EntityID:   entityID,
		RevisionID: rev.ID,
		Timestamp:  rev.Timestamp,
		Comment:    rev.Comment,
		UserID:     rev.Contributor.ID,
		Actor:      rev.Contributor.Class(),
	}
}

// Diff returns the changes from prev to cur. A nil prev means the entity is
// created by this revision and a nil cur means it is deleted.
func Diff(prev, cur *wdhistory.Snapshot, meta RevisionMeta) []wdhistory.Change {
	d := &differ{meta: meta}
	switch {
	case prev == nil && cur == nil:
		return nil
	case prev == nil:
		d.entity(cur, wdhistory.CreateEntity)
	case cur == nil:
		d.entity(prev, wdhistory.DeleteEntity)
	default:
		d.text(wdhistory.LabelPropertyID, wdhistory.LabelValueID, prev.Label, cur.Label)
		d.text(wdhistory.DescriptionPropertyID, wdhistory.DescriptionValueID, prev.Description, cur.Description)
		d.claims(prev, cur)
	}
	return d.out
}

type differ struct {
	meta RevisionMeta
	out  []wdhistory.Change
}

func (d *differ) emit(c wdhistory.Change) {
	c.EntityID = d.meta.EntityID
	c.RevisionID = d.meta.RevisionID
	c.Timestamp = d.meta.Timestamp
	c.Comment = d.meta.Comment
	c.UserID = d.meta.UserID
	c.Actor = d.meta.Actor
	d.out = append(d.out, c)
}

// entity emits a create or delete change for every statement, the label and
// the description of s.
func (d *differ) entity(s *wdhistory.Snapshot, kind wdhistory.ChangeKind) {
	create := kind.IsCreate()
	for _, pid := range s.PropertyIDs() {
		for i := range s.Claims[pid] {
			stmt := &s.Claims[pid][i]
			d.statementValue(stmt, kind, create)
			d.statementMetadata(stmt, kind, create)
		}
	}
	for _, t := range []struct {
		pid int64
		vid string
		val *string
	}{
		{wdhistory.LabelPropertyID, wdhistory.LabelValueID, s.Label},
		{wdhistory.DescriptionPropertyID, wdhistory.DescriptionValueID, s.Description},
	} {
		if t.val == nil || *t.val == "" {
			continue
		}
		c := wdhistory.Change{PropertyID: t.pid, ValueID: t.vid, Kind: kind}
		if create {
			c.New, c.NewDatatype = wdhistory.StringValue(*t.val), "string"
		} else {
			c.Old, c.OldDatatype = wdhistory.StringValue(*t.val), "string"
		}
		d.emit(c)
	}
}

// text diffs the label or the description by value.
func (d *differ) text(pid int64, vid string, old, new *string) {
	o, n := deref(old), deref(new)
	if o == n {
		return
	}
	c := wdhistory.Change{PropertyID: pid, ValueID: vid}
	switch {
	case o == "":
		c.Kind = wdhistory.CreateProperty
		c.New, c.NewDatatype = wdhistory.StringValue(n), "string"
	case n == "":
		c.Kind = wdhistory.DeleteProperty
		c.Old, c.OldDatatype = wdhistory.StringValue(o), "string"
	default:
		c.Kind = wdhistory.UpdatePropertyValue
		c.Old, c.OldDatatype = wdhistory.StringValue(o), "string"
		c.New, c.NewDatatype = wdhistory.StringValue(n), "string"
		c.Magnitude = magnitude(c.Old, c.New)
	}
	d.emit(c)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (d *differ) claims(prev, cur *wdhistory.Snapshot) {
	pids := make([]string, 0, len(prev.Claims)+len(cur.Claims))
	for pid := range prev.Claims {
		pids = append(pids, pid)
	}
	for pid := range cur.Claims {
		if _, ok := prev.Claims[pid]; !ok {
			pids = append(pids, pid)
		}
	}
	wdhistory.SortPropertyIDs(pids)

	for _, pid := range pids {
		olds, inPrev := prev.Claims[pid]
		news, inCur := cur.Claims[pid]
		switch {
		case !inPrev:
			d.property(pid, wdhistory.CreateProperty)
			for i := range news {
				d.statementCreated(&news[i], wdhistory.CreatePropertyValue)
			}
		case !inCur:
			d.property(pid, wdhistory.DeleteProperty)
			for i := range olds {
				d.statementDeleted(&olds[i], wdhistory.DeletePropertyValue)
			}
		default:
			d.statements(olds, news)
		}
	}
}

// property emits the property level change which accompanies the per
// statement changes when a property appears or disappears.
func (d *differ) property(pid string, kind wdhistory.ChangeKind) {
	c := wdhistory.Change{
		PropertyID: wdhistory.PropertyNumber(pid),
		ValueID:    pid,
		Target:     wdhistory.TargetProperty,
		Kind:       kind,
	}
	if kind.IsCreate() {
		c.New = wdhistory.EntityValue(pid)
	} else {
		c.Old = wdhistory.EntityValue(pid)
	}
	d.emit(c)
}

// statements reconciles the statements of one property by statement id.
func (d *differ) statements(olds, news []wdhistory.Statement) {
	byID := make(map[string]*wdhistory.Statement, len(olds))
	for i := range olds {
		byID[olds[i].ID] = &olds[i]
	}
	seen := make(map[string]bool, len(news))
	for i := range news {
		n := &news[i]
		seen[n.ID] = true
		if o, ok := byID[n.ID]; ok {
			d.statementUpdated(o, n)
		} else {
			d.statementCreated(n, wdhistory.CreatePropertyValue)
		}
	}
	for i := range olds {
		if !seen[olds[i].ID] {
			d.statementDeleted(&olds[i], wdhistory.DeletePropertyValue)
		}
	}
}

func (d *differ) statementCreated(s *wdhistory.Statement, kind wdhistory.ChangeKind) {
	d.statementValue(s, kind, true)
	d.statementMetadata(s, kind, true)
	d.qualifiers(s, nil, s.Qualifiers)
	d.references(s, nil, s.References)
}

func (d *differ) statementDeleted(s *wdhistory.Statement, kind wdhistory.ChangeKind) {
	d.statementValue(s, kind, false)
	d.statementMetadata(s, kind, false)
	d.qualifiers(s, s.Qualifiers, nil)
	d.references(s, s.References, nil)
}

// statementValue emits the value change(s) of a whole statement appearing
// or disappearing. Coordinates are split into latitude and longitude.
func (d *differ) statementValue(s *wdhistory.Statement, kind wdhistory.ChangeKind, create bool) {
	for _, t := range targetsOf(s.Value) {
		c := wdhistory.Change{
			PropertyID: wdhistory.PropertyNumber(s.PropertyID),
			ValueID:    s.ID,
			Target:     t.target,
			Kind:       kind,
		}
		if create {
			c.New, c.NewDatatype, c.NewHash = t.value, s.Datatype, s.Hash
		} else {
			c.Old, c.OldDatatype, c.OldHash = t.value, s.Datatype, s.Hash
		}
		d.emit(c)
	}
}

func (d *differ) statementMetadata(s *wdhistory.Statement, kind wdhistory.ChangeKind, create bool) {
	for _, k := range s.Metadata.Keys() {
		c := wdhistory.Change{
			PropertyID:  wdhistory.PropertyNumber(s.PropertyID),
			ValueID:     s.ID,
			Kind:        kind,
			MetadataKey: k,
		}
		if create {
			c.New, c.NewDatatype, c.NewHash = wdhistory.RawValue(s.Metadata[k]), s.Datatype, s.Hash
		} else {
			c.Old, c.OldDatatype, c.OldHash = wdhistory.RawValue(s.Metadata[k]), s.Datatype, s.Hash
		}
		d.emit(c)
	}
}

// statementUpdated diffs two versions of the same statement.
func (d *differ) statementUpdated(o, n *wdhistory.Statement) {
	if o.Hash != n.Hash {
		datatypeChanged := o.Datatype != n.Datatype
		if datatypeChanged || !wdhistory.ValuesEqual(o.Value, n.Value) {
			d.valueUpdated(o, n)
		}
		if datatypeChanged || !o.Metadata.Equal(n.Metadata) {
			d.metadataUpdated(o, n)
		}
	}
	if o.Rank != n.Rank {
		d.emit(wdhistory.Change{
			PropertyID:  wdhistory.PropertyNumber(n.PropertyID),
			ValueID:     n.ID,
			Target:      wdhistory.TargetRank,
			Kind:        wdhistory.UpdateRank,
			Old:         wdhistory.StringValue(o.Rank),
			New:         wdhistory.StringValue(n.Rank),
			OldDatatype: o.Datatype,
			NewDatatype: n.Datatype,
			OldHash:     o.Hash,
			NewHash:     n.Hash,
		})
	}
	d.qualifiers(n, o.Qualifiers, n.Qualifiers)
	d.references(n, o.References, n.References)
}

// valueUpdated emits one update per differing target. When the datatype is
// unchanged each target carries a magnitude if one can be computed.
func (d *differ) valueUpdated(o, n *wdhistory.Statement) {
	ot, nt := targetMap(o.Value), targetMap(n.Value)
	var mag *float64
	if o.Datatype == n.Datatype {
		mag = magnitude(o.Value, n.Value)
	}
	for _, target := range []string{wdhistory.TargetValue, wdhistory.TargetLatitude, wdhistory.TargetLongitude} {
		ov, inOld := ot[target]
		nv, inNew := nt[target]
		if !inOld && !inNew {
			continue
		}
		if wdhistory.ValuesEqual(ov, nv) {
			continue
		}
		d.emit(wdhistory.Change{
			PropertyID:  wdhistory.PropertyNumber(n.PropertyID),
			ValueID:     n.ID,
			Target:      target,
			Kind:        wdhistory.UpdatePropertyValue,
			Old:         ov,
			New:         nv,
			OldDatatype: o.Datatype,
			NewDatatype: n.Datatype,
			OldHash:     o.Hash,
			NewHash:     n.Hash,
			Magnitude:   mag,
		})
	}
}

// metadataUpdated pairs metadata entries strictly by key. A key present on
// one side only is reported with the other side nil.
func (d *differ) metadataUpdated(o, n *wdhistory.Statement) {
	keys := o.Metadata.Keys()
	for _, k := range n.Metadata.Keys() {
		if _, ok := o.Metadata[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		ov, inOld := o.Metadata[k]
		nv, inNew := n.Metadata[k]
		if inOld && inNew && ov == nv {
			continue
		}
		c := wdhistory.Change{
			PropertyID:  wdhistory.PropertyNumber(n.PropertyID),
			ValueID:     n.ID,
			Kind:        wdhistory.UpdatePropertyDatatypeMetadata,
			MetadataKey: k,
			OldDatatype: o.Datatype,
			NewDatatype: n.Datatype,
			OldHash:     o.Hash,
			NewHash:     n.Hash,
		}
		if inOld {
			c.Old = wdhistory.RawValue(ov)
		}
		if inNew {
			c.New = wdhistory.RawValue(nv)
		}
		d.emit(c)
	}
}

type targetValue struct {
	target string
	value  wdhistory.Value
}

func targetsOf(v wdhistory.Value) []targetValue {
	if g, ok := v.(wdhistory.GlobeValue); ok {
		return []targetValue{
			{wdhistory.TargetLatitude, wdhistory.Coordinate(g.Latitude)},
			{wdhistory.TargetLongitude, wdhistory.Coordinate(g.Longitude)},
		}
	}
	return []targetValue{{wdhistory.TargetValue, v}}
}

func targetMap(v wdhistory.Value) map[string]wdhistory.Value {
	m := make(map[string]wdhistory.Value, 2)
	for _, t := range targetsOf(v) {
		m[t.target] = t.value
	}
	return m
}

func magnitude(o, n wdhistory.Value) *float64 {
	if m, ok := Magnitude(o, n); ok {
		return &m
	}
	return nil
}
