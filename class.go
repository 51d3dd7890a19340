package wdhistory

// Classification selects the family of tables an entity's rows go to.
type Classification int

const (
	ClassDefault Classification = iota
	ClassLessRevisions
	ClassScholarlyArticle
	ClassAstronomicalObject
)

// Classifications lists every Classification.
var Classifications = []Classification{
	ClassDefault,
	ClassLessRevisions,
	ClassScholarlyArticle,
	ClassAstronomicalObject,
}

// Suffix is appended to the base table names.
func (c Classification) Suffix() string {
	switch c {
	case ClassLessRevisions:
		return "_less"
	case ClassScholarlyArticle:
		return "_sa"
	case ClassAstronomicalObject:
		return "_ao"
	default:
		return ""
	}
}

// HasFeatures reports whether feature tables exist for c.
func (c Classification) HasFeatures() bool {
	return c == ClassDefault || c == ClassLessRevisions
}

func (c Classification) String() string {
	switch c {
	case ClassLessRevisions:
		return "less-revisions"
	case ClassScholarlyArticle:
		return "scholarly-article"
	case ClassAstronomicalObject:
		return "astronomical-object"
	default:
		return "default"
	}
}
