package wdhistory

import "sort"

// Snapshot is the decoded document of one revision. Only the working
// language label and description are kept.
type Snapshot struct {
	Label       *string
	Description *string
	Claims      map[string][]Statement
	// Redirect is the target of a merged entity.
	Redirect string
}

// Empty reports whether s has no label, description or claims, or is a
// redirect. An empty snapshot means the entity does not exist at that
// revision.
func (s *Snapshot) Empty() bool {
	if s == nil || s.Redirect != "" {
		return true
	}
	return (s.Label == nil || *s.Label == "") &&
		(s.Description == nil || *s.Description == "") &&
		len(s.Claims) == 0
}

// PropertyIDs returns the property ids of s in ascending numeric order.
func (s *Snapshot) PropertyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Claims))
	for pid := range s.Claims {
		ids = append(ids, pid)
	}
	SortPropertyIDs(ids)
	return ids
}

// SortPropertyIDs sorts ids like "P31" by their numeric part.
func SortPropertyIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := PropertyNumber(ids[i]), PropertyNumber(ids[j])
		if ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
}

// Statement is one property-value assertion. ID is stable across revisions.
// Hash is the hash of the main snak and changes whenever its value, datatype
// or metadata change.
type Statement struct {
	ID         string
	PropertyID string
	Rank       string
	Hash       string
	Value      Value
	Datatype   string
	Metadata   Metadata
	Qualifiers []Snak
	References []Reference
}

// Snak is a property-value pair inside a qualifier or a reference.
type Snak struct {
	PropertyID string
	Hash       string
	Value      Value
	Datatype   string
	Metadata   Metadata
}

// Reference is a group of snaks identified by its hash.
type Reference struct {
	Hash  string
	Snaks []Snak
}

// Metadata holds the auxiliary fields of a compound value (precision, unit,
// calendar model, language, ...) as compact JSON keyed by field name.
type Metadata map[string]string

// Keys returns the keys of m in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether m and o hold the same entries.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
