// Package codec decodes the JSON body of a revision into a wdhistory.Snapshot.
package codec

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pilosa/wdhistory"
	"github.com/pkg/errors"
)

// Language is the only language whose label and description are kept.
const Language = "en"

// DecodeError is returned when a revision body can't be decoded. Callers
// treat it as the entity being deleted at that revision.
type DecodeError struct {
	RevisionID int64
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding revision %d: %v", e.RevisionID, e.Err)
}

// Cause returns the underlying error.
func (e *DecodeError) Cause() error { return e.Err }

type rawSnak struct {
	SnakType  string          `json:"snaktype"`
	Property  string          `json:"property"`
	Hash      string          `json:"hash"`
	DataValue json.RawMessage `json:"datavalue"`
}

type rawDataValue struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

type rawStatement struct {
	ID              string          `json:"id"`
	Rank            string          `json:"rank"`
	MainSnak        rawSnak         `json:"mainsnak"`
	QualifiersRaw   json.RawMessage `json:"qualifiers"`
	QualifiersOrder []string        `json:"qualifiers-order"`
	References      []rawReference  `json:"references"`
}

type rawReference struct {
	Hash       string               `json:"hash"`
	Snaks      map[string][]rawSnak `json:"snaks"`
	SnaksOrder []string             `json:"snaks-order"`
}

// Decode decodes text, the body of revision revisionID.
func Decode(revisionID int64, text []byte) (*wdhistory.Snapshot, error) {
	doc := json.RawMessage(text)
	if !isObject(doc) {
		return nil, &DecodeError{RevisionID: revisionID, Err: errors.New("document is not a JSON object")}
	}
	if !json.Valid(doc) {
		return nil, &DecodeError{RevisionID: revisionID, Err: errors.New("invalid JSON")}
	}
	snap := &wdhistory.Snapshot{Claims: make(map[string][]wdhistory.Statement)}
	if target, ok := LookupString(doc, "redirect"); ok {
		snap.Redirect = target
		return snap, nil
	}
	if label, ok := LookupString(doc, "labels", Language, "value"); ok {
		snap.Label = &label
	}
	if desc, ok := LookupString(doc, "descriptions", Language, "value"); ok {
		snap.Description = &desc
	}

	claimsRaw, ok := Lookup(doc, "claims")
	if !ok {
		return snap, nil
	}
	if !isObject(claimsRaw) {
		return nil, &DecodeError{RevisionID: revisionID, Err: errors.New("claims is not an object")}
	}
	var claims map[string][]rawStatement
	if err := json.Unmarshal(claimsRaw, &claims); err != nil {
		return nil, &DecodeError{RevisionID: revisionID, Err: errors.Wrap(err, "decoding claims")}
	}
	for pid, raws := range claims {
		stmts := make([]wdhistory.Statement, 0, len(raws))
		for _, rs := range raws {
			stmt, err := decodeStatement(pid, rs)
			if err != nil {
				return nil, &DecodeError{RevisionID: revisionID, Err: errors.Wrapf(err, "property %s", pid)}
			}
			stmts = append(stmts, stmt)
		}
		if len(stmts) > 0 {
			snap.Claims[pid] = stmts
		}
	}
	return snap, nil
}

func decodeStatement(pid string, rs rawStatement) (wdhistory.Statement, error) {
	main, err := decodeSnak(pid, rs.MainSnak)
	if err != nil {
		return wdhistory.Statement{}, errors.Wrap(err, "main snak")
	}
	stmt := wdhistory.Statement{
		ID:         rs.ID,
		PropertyID: pid,
		Rank:       rs.Rank,
		Hash:       main.Hash,
		Value:      main.Value,
		Datatype:   main.Datatype,
		Metadata:   main.Metadata,
	}
	if stmt.ID == "" {
		// very old revisions have no statement ids
		stmt.ID = pid + "$" + main.Hash
	}
	if stmt.Rank == "" {
		stmt.Rank = "normal"
	}
	if raw, ok := Lookup(rs.QualifiersRaw); ok && isObject(raw) {
		var quals map[string][]rawSnak
		if err := json.Unmarshal(raw, &quals); err != nil {
			return stmt, errors.Wrap(err, "decoding qualifiers")
		}
		stmt.Qualifiers, err = decodeSnaks(quals, rs.QualifiersOrder)
		if err != nil {
			return stmt, errors.Wrap(err, "qualifiers")
		}
	}
	for _, rr := range rs.References {
		snaks, err := decodeSnaks(rr.Snaks, rr.SnaksOrder)
		if err != nil {
			return stmt, errors.Wrapf(err, "reference %s", rr.Hash)
		}
		stmt.References = append(stmt.References, wdhistory.Reference{Hash: rr.Hash, Snaks: snaks})
	}
	return stmt, nil
}

func decodeSnaks(m map[string][]rawSnak, order []string) ([]wdhistory.Snak, error) {
	pids := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, pid := range order {
		if _, ok := m[pid]; ok && !seen[pid] {
			pids = append(pids, pid)
			seen[pid] = true
		}
	}
	rest := make([]string, 0)
	for pid := range m {
		if !seen[pid] {
			rest = append(rest, pid)
		}
	}
	wdhistory.SortPropertyIDs(rest)
	pids = append(pids, rest...)

	var snaks []wdhistory.Snak
	for _, pid := range pids {
		for _, rs := range m[pid] {
			s, err := decodeSnak(pid, rs)
			if err != nil {
				return nil, err
			}
			snaks = append(snaks, s)
		}
	}
	return snaks, nil
}

func decodeSnak(pid string, rs rawSnak) (wdhistory.Snak, error) {
	if rs.Property != "" {
		pid = rs.Property
	}
	s := wdhistory.Snak{PropertyID: pid, Hash: rs.Hash}
	switch rs.SnakType {
	case "value":
		var dv rawDataValue
		if err := json.Unmarshal(rs.DataValue, &dv); err != nil {
			return s, errors.Wrap(err, "decoding datavalue")
		}
		v, md, err := ParseDataValue(dv.Type, dv.Value)
		if err != nil {
			return s, err
		}
		s.Value, s.Datatype, s.Metadata = v, dv.Type, md
	case "novalue":
		s.Value = wdhistory.NoValue
	case "somevalue":
		s.Value = wdhistory.SomeValue
	default:
		return s, errors.Errorf("unknown snaktype '%s'", rs.SnakType)
	}
	if s.Hash == "" {
		s.Hash = fallbackHash(rs)
	}
	return s, nil
}

// metadataExcluded are the keys of a compound value which are not metadata:
// either they are the value itself or they are deprecated.
var metadataExcluded = map[string]bool{
	"time":      true,
	"amount":    true,
	"latitude":  true,
	"longitude": true,
	"altitude":  true,
	"before":    true,
	"after":     true,
}

// ParseDataValue splits a datavalue into its primary value and its datatype
// metadata.
func ParseDataValue(typ string, raw json.RawMessage) (wdhistory.Value, wdhistory.Metadata, error) {
	if !isObject(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return wdhistory.StringValue(s), nil, nil
		}
		return wdhistory.RawValue(compact(raw)), nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, errors.Wrap(err, "decoding value object")
	}
	switch typ {
	case "wikibase-entityid":
		var ref struct {
			ID        string      `json:"id"`
			NumericID json.Number `json:"numeric-id"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, nil, errors.Wrap(err, "decoding entity id")
		}
		if ref.ID != "" {
			return wdhistory.EntityValue(ref.ID), nil, nil
		}
		return wdhistory.EntityValue("Q" + ref.NumericID.String()), nil, nil
	case "globecoordinate":
		var g wdhistory.GlobeValue
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, nil, errors.Wrap(err, "decoding coordinates")
		}
		return g, metadataOf(obj), nil
	case "time":
		var t string
		_ = json.Unmarshal(obj["time"], &t)
		return wdhistory.TimeValue(t), metadataOf(obj), nil
	case "quantity":
		var a string
		if err := json.Unmarshal(obj["amount"], &a); err != nil {
			a = compact(obj["amount"])
		}
		return wdhistory.QuantityValue(a), metadataOf(obj), nil
	case "monolingualtext":
		var t string
		_ = json.Unmarshal(obj["text"], &t)
		md := metadataOf(obj)
		delete(md, "text")
		return wdhistory.MonolingualValue(t), md, nil
	default:
		return wdhistory.RawValue(compact(raw)), nil, nil
	}
}

func metadataOf(obj map[string]json.RawMessage) wdhistory.Metadata {
	md := make(wdhistory.Metadata)
	for k, v := range obj {
		if metadataExcluded[k] {
			continue
		}
		md[k] = compact(v)
	}
	return md
}

func fallbackHash(rs rawSnak) string {
	h := sha1.New()
	for _, k := range []string{rs.SnakType, rs.Property, compact(rs.DataValue)} {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
