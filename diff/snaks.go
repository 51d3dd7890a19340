package diff

import "github.com/pilosa/wdhistory"

// qualifiers diffs the qualifier snaks of a statement. Snaks are identified
// by their hash within a qualifier property, so a modified qualifier shows up
// as a delete and a create.
func (d *differ) qualifiers(s *wdhistory.Statement, olds, news []wdhistory.Snak) {
	if len(olds) == 0 && len(news) == 0 {
		return
	}
	op, oldOrder := groupSnaks(olds)
	np, newOrder := groupSnaks(news)

	for _, qp := range newOrder {
		if _, ok := op[qp]; !ok {
			d.qualifierProperty(s, qp, wdhistory.CreateQualifier)
			for _, sn := range np[qp] {
				d.snak(s, "", sn, wdhistory.CreateQualifierValue)
			}
			continue
		}
		old := hashes(op[qp])
		for _, sn := range np[qp] {
			if !old[sn.Hash] {
				d.snak(s, "", sn, wdhistory.CreateQualifierValue)
			}
		}
	}
	for _, qp := range oldOrder {
		if _, ok := np[qp]; !ok {
			d.qualifierProperty(s, qp, wdhistory.DeleteQualifier)
			for _, sn := range op[qp] {
				d.snak(s, "", sn, wdhistory.DeleteQualifierValue)
			}
			continue
		}
		cur := hashes(np[qp])
		for _, sn := range op[qp] {
			if !cur[sn.Hash] {
				d.snak(s, "", sn, wdhistory.DeleteQualifierValue)
			}
		}
	}
}

func (d *differ) qualifierProperty(s *wdhistory.Statement, qp string, kind wdhistory.ChangeKind) {
	c := wdhistory.Change{
		PropertyID: wdhistory.PropertyNumber(s.PropertyID),
		ValueID:    s.ID,
		Kind:       kind,
		Snak:       &wdhistory.SnakRef{PropertyID: wdhistory.PropertyNumber(qp)},
	}
	if kind.IsCreate() {
		c.New = wdhistory.EntityValue(qp)
	} else {
		c.Old = wdhistory.EntityValue(qp)
	}
	d.emit(c)
}

// references diffs references by hash. References are immutable: any edit
// to one yields a new hash.
func (d *differ) references(s *wdhistory.Statement, olds, news []wdhistory.Reference) {
	if len(olds) == 0 && len(news) == 0 {
		return
	}
	oldHashes := make(map[string]bool, len(olds))
	for _, r := range olds {
		oldHashes[r.Hash] = true
	}
	newHashes := make(map[string]bool, len(news))
	for _, r := range news {
		newHashes[r.Hash] = true
	}
	done := make(map[string]bool)
	for _, r := range news {
		if oldHashes[r.Hash] || done[r.Hash] {
			continue
		}
		done[r.Hash] = true
		d.reference(s, r, wdhistory.CreateReference, wdhistory.CreateReferenceValue)
	}
	for _, r := range olds {
		if newHashes[r.Hash] || done[r.Hash] {
			continue
		}
		done[r.Hash] = true
		d.reference(s, r, wdhistory.DeleteReference, wdhistory.DeleteReferenceValue)
	}
}

func (d *differ) reference(s *wdhistory.Statement, r wdhistory.Reference, kind, valueKind wdhistory.ChangeKind) {
	c := wdhistory.Change{
		PropertyID: wdhistory.PropertyNumber(s.PropertyID),
		ValueID:    s.ID,
		Kind:       kind,
		Snak:       &wdhistory.SnakRef{ReferenceHash: r.Hash},
	}
	if kind.IsCreate() {
		c.New = wdhistory.StringValue(r.Hash)
	} else {
		c.Old = wdhistory.StringValue(r.Hash)
	}
	d.emit(c)
	seen := make(map[string]bool, len(r.Snaks))
	for _, sn := range r.Snaks {
		key := sn.PropertyID + "|" + sn.Hash
		if seen[key] {
			continue
		}
		seen[key] = true
		d.snak(s, r.Hash, sn, valueKind)
	}
}

func (d *differ) snak(s *wdhistory.Statement, refHash string, sn wdhistory.Snak, kind wdhistory.ChangeKind) {
	c := wdhistory.Change{
		PropertyID: wdhistory.PropertyNumber(s.PropertyID),
		ValueID:    s.ID,
		Kind:       kind,
		Snak: &wdhistory.SnakRef{
			ReferenceHash: refHash,
			PropertyID:    wdhistory.PropertyNumber(sn.PropertyID),
			Hash:          sn.Hash,
		},
	}
	if kind.IsCreate() {
		c.New, c.NewDatatype = sn.Value, sn.Datatype
	} else {
		c.Old, c.OldDatatype = sn.Value, sn.Datatype
	}
	d.emit(c)
}

// groupSnaks groups snaks by property, deduplicating equal hashes, and
// returns the properties in first-seen order.
func groupSnaks(snaks []wdhistory.Snak) (map[string][]wdhistory.Snak, []string) {
	m := make(map[string][]wdhistory.Snak)
	var order []string
	seen := make(map[string]bool)
	for _, sn := range snaks {
		if _, ok := m[sn.PropertyID]; !ok {
			order = append(order, sn.PropertyID)
		}
		key := sn.PropertyID + "|" + sn.Hash
		if seen[key] {
			continue
		}
		seen[key] = true
		m[sn.PropertyID] = append(m[sn.PropertyID], sn)
	}
	return m, order
}

func hashes(snaks []wdhistory.Snak) map[string]bool {
	m := make(map[string]bool, len(snaks))
	for _, sn := range snaks {
		m[sn.Hash] = true
	}
	return m
}
