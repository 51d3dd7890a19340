package wdhistory

import (
	"strconv"
	"strings"
	"time"
)

// Property ids used for the label and description, which have no property
// id of their own.
const (
	LabelPropertyID       int64 = -1
	DescriptionPropertyID int64 = -2
)

// Value ids of the label and description changes.
const (
	LabelValueID       = "label"
	DescriptionValueID = "description"
)

// PropertyNumber returns the numeric part of a property id like "P31". It
// returns 0 if pid is not of that form.
func PropertyNumber(pid string) int64 {
	if len(pid) < 2 || (pid[0] != 'P' && pid[0] != 'p') {
		return 0
	}
	n, err := strconv.ParseInt(pid[1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// PropertyString is the inverse of PropertyNumber.
func PropertyString(n int64) string {
	switch n {
	case LabelPropertyID:
		return LabelValueID
	case DescriptionPropertyID:
		return DescriptionValueID
	}
	return "P" + strconv.FormatInt(n, 10)
}

// ChangeKind is the type of an atomic change.
type ChangeKind int

const (
	CreateEntity ChangeKind = iota + 1
	DeleteEntity
	CreateProperty
	DeleteProperty
	CreatePropertyValue
	DeletePropertyValue
	UpdatePropertyValue
	UpdatePropertyDatatypeMetadata
	UpdateRank
	CreateQualifier
	DeleteQualifier
	CreateQualifierValue
	DeleteQualifierValue
	CreateReference
	DeleteReference
	CreateReferenceValue
	DeleteReferenceValue
)

var kindNames = map[ChangeKind]string{
	CreateEntity:                   "CREATE_ENTITY",
	DeleteEntity:                   "DELETE_ENTITY",
	CreateProperty:                 "CREATE_PROPERTY",
	DeleteProperty:                 "DELETE_PROPERTY",
	CreatePropertyValue:            "CREATE_PROPERTY_VALUE",
	DeletePropertyValue:            "DELETE_PROPERTY_VALUE",
	UpdatePropertyValue:            "UPDATE_PROPERTY_VALUE",
	UpdatePropertyDatatypeMetadata: "UPDATE_PROPERTY_DATATYPE_METADATA",
	UpdateRank:                     "UPDATE_RANK",
	CreateQualifier:                "CREATE_QUALIFIER",
	DeleteQualifier:                "DELETE_QUALIFIER",
	CreateQualifierValue:           "CREATE_QUALIFIER_VALUE",
	DeleteQualifierValue:           "DELETE_QUALIFIER_VALUE",
	CreateReference:                "CREATE_REFERENCE",
	DeleteReference:                "DELETE_REFERENCE",
	CreateReferenceValue:           "CREATE_REFERENCE_VALUE",
	DeleteReferenceValue:           "DELETE_REFERENCE_VALUE",
}

func (k ChangeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN_" + strconv.Itoa(int(k))
}

// IsCreate reports whether k adds something that was absent.
func (k ChangeKind) IsCreate() bool {
	return strings.HasPrefix(k.String(), "CREATE_")
}

// IsDelete reports whether k removes something that was present.
func (k ChangeKind) IsDelete() bool {
	return strings.HasPrefix(k.String(), "DELETE_")
}

// Change targets distinguish changes which share a property and value id.
const (
	TargetValue     = ""
	TargetLatitude  = "latitude"
	TargetLongitude = "longitude"
	TargetRank      = "rank"
	TargetProperty  = "property"
)

// Category says which table a Change belongs to.
type Category int

const (
	CategoryValue Category = iota
	CategoryQualifier
	CategoryReference
	CategoryMetadata
)

// SnakRef locates a qualifier or reference snak within its statement.
// ReferenceHash is empty for qualifiers. Hash is empty for the property
// level qualifier changes and for whole reference changes.
type SnakRef struct {
	ReferenceHash string
	PropertyID    int64
	Hash          string
}

// Change is one atomic modification between two snapshots. It is produced
// by the diff stage, annotated once by revert detection and then persisted.
type Change struct {
	EntityID   string
	RevisionID int64
	Timestamp  time.Time
	Comment    string
	UserID     int64
	Actor      ActorClass

	PropertyID int64
	ValueID    string
	Target     string
	Kind       ChangeKind

	Old, New                 Value
	OldDatatype, NewDatatype string

	// MetadataKey is set on datatype metadata changes.
	MetadataKey string
	// Snak is set on qualifier and reference changes.
	Snak *SnakRef

	// OldHash and NewHash are the main snak hashes of the statement before
	// and after the change.
	OldHash, NewHash string

	Magnitude *float64

	Reverted  bool
	Reversion bool
}

// Category returns the table category of c.
func (c *Change) Category() Category {
	switch {
	case c.Snak != nil && c.Snak.ReferenceHash != "":
		return CategoryReference
	case c.Snak != nil:
		return CategoryQualifier
	case c.MetadataKey != "":
		return CategoryMetadata
	default:
		return CategoryValue
	}
}

// IsLabelOrDescription reports whether c changes the label or description.
func (c *Change) IsLabelOrDescription() bool {
	return c.PropertyID == LabelPropertyID || c.PropertyID == DescriptionPropertyID
}
