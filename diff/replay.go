package diff

import "github.com/pilosa/wdhistory"

// ClaimMap is the statement values of an entity keyed by property id and
// statement id.
type ClaimMap map[string]map[string]wdhistory.Value

// ClaimsOf returns the ClaimMap of s.
func ClaimsOf(s *wdhistory.Snapshot) ClaimMap {
	m := make(ClaimMap)
	if s == nil {
		return m
	}
	for pid, stmts := range s.Claims {
		for _, st := range stmts {
			m.set(pid, st.ID, st.Value)
		}
	}
	return m
}

func (m ClaimMap) set(pid, vid string, v wdhistory.Value) {
	if m[pid] == nil {
		m[pid] = make(map[string]wdhistory.Value)
	}
	m[pid][vid] = v
}

func (m ClaimMap) remove(pid, vid string) {
	delete(m[pid], vid)
	if len(m[pid]) == 0 {
		delete(m, pid)
	}
}

// Apply replays the statement value changes in changes on m. Label,
// description, metadata, rank, qualifier and reference changes are ignored.
func (m ClaimMap) Apply(changes []wdhistory.Change) {
	for i := range changes {
		c := &changes[i]
		if c.Category() != wdhistory.CategoryValue || c.IsLabelOrDescription() || c.Target == wdhistory.TargetProperty || c.Target == wdhistory.TargetRank {
			continue
		}
		pid := wdhistory.PropertyString(c.PropertyID)
		if c.Kind.IsDelete() {
			m.remove(pid, c.ValueID)
			continue
		}
		cur := m[pid][c.ValueID]
		switch c.Target {
		case wdhistory.TargetValue:
			if c.New == nil {
				m.remove(pid, c.ValueID)
			} else {
				m.set(pid, c.ValueID, c.New)
			}
		case wdhistory.TargetLatitude, wdhistory.TargetLongitude:
			coord, ok := c.New.(wdhistory.Coordinate)
			if !ok {
				continue
			}
			g, _ := cur.(wdhistory.GlobeValue)
			if c.Target == wdhistory.TargetLatitude {
				g.Latitude = float64(coord)
			} else {
				g.Longitude = float64(coord)
			}
			m.set(pid, c.ValueID, g)
		}
	}
}
