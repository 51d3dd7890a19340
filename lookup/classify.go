package lookup

import (
	"github.com/pilosa/wdhistory"
	"github.com/pkg/errors"
)

// InstanceOf is the property whose values give an entity's types.
const InstanceOf = "P31"

// Default classification roots.
const (
	ScholarlyArticle   = "Q13442814"
	AstronomicalObject = "Q6999"
)

// Classifier picks the table family an entity's rows are written to.
type Classifier struct {
	Closure          Closure
	ScholarlyRoot    string
	AstronomicalRoot string
	LessRevisions    int
}

// NewClassifier returns a Classifier with the default roots.
func NewClassifier(c Closure, lessRevisions int) *Classifier {
	return &Classifier{
		Closure:          c,
		ScholarlyRoot:    ScholarlyArticle,
		AstronomicalRoot: AstronomicalObject,
		LessRevisions:    lessRevisions,
	}
}

// Classify classifies an entity from the types of its latest snapshot and
// its number of revisions. Astronomical objects win over scholarly articles.
func (c *Classifier) Classify(types []string, revisions int) (wdhistory.Classification, error) {
	ao, err := c.isA(types, c.AstronomicalRoot)
	if err != nil {
		return wdhistory.ClassDefault, errors.Wrap(err, "checking astronomical object")
	}
	if ao {
		return wdhistory.ClassAstronomicalObject, nil
	}
	sa, err := c.isA(types, c.ScholarlyRoot)
	if err != nil {
		return wdhistory.ClassDefault, errors.Wrap(err, "checking scholarly article")
	}
	if sa {
		return wdhistory.ClassScholarlyArticle, nil
	}
	if revisions < c.LessRevisions {
		return wdhistory.ClassLessRevisions, nil
	}
	return wdhistory.ClassDefault, nil
}

func (c *Classifier) isA(types []string, root string) (bool, error) {
	if root == "" {
		return false, nil
	}
	for _, t := range types {
		if t == root {
			return true, nil
		}
		ok, err := c.Closure.IsAncestor(t, root, SubclassOf)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// TypesOf returns the entity values of snap's InstanceOf statements.
func TypesOf(snap *wdhistory.Snapshot) []string {
	if snap == nil {
		return nil
	}
	var types []string
	for _, stmt := range snap.Claims[InstanceOf] {
		if ev, ok := stmt.Value.(wdhistory.EntityValue); ok {
			types = append(types, string(ev))
		}
	}
	return types
}
