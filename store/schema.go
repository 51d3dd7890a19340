package store

import (
	"fmt"
	"strings"

	"github.com/pilosa/wdhistory"
)

// ColumnType is a portable column type. Each Dialect maps it to SQL.
type ColumnType int

const (
	Integer ColumnType = iota
	Text
	Real
	Boolean
	Timestamp
)

// Column is a named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes one output table. Name is the base name; the table an
// entity's rows go to is Name plus the suffix of its Classification.
type Table struct {
	Name    string
	Columns []Column
	Key     []string
	// Features marks tables only written for classes with features.
	Features bool
}

// ColumnNames returns the names of t's columns in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// For returns the table name used for class.
func (t *Table) For(class wdhistory.Classification) string {
	return t.Name + class.Suffix()
}

// Dialect renders DDL for one database.
type Dialect struct {
	Name  string
	Types map[ColumnType]string
}

// Dialects supported by the stores in this package.
var (
	SQLite = Dialect{
		Name: "sqlite",
		Types: map[ColumnType]string{
			Integer:   "INTEGER",
			Text:      "TEXT",
			Real:      "REAL",
			Boolean:   "BOOLEAN",
			Timestamp: "TIMESTAMP",
		},
	}
	Postgres = Dialect{
		Name: "postgres",
		Types: map[ColumnType]string{
			Integer:   "BIGINT",
			Text:      "TEXT",
			Real:      "DOUBLE PRECISION",
			Boolean:   "BOOLEAN",
			Timestamp: "TIMESTAMPTZ",
		},
	}
)

// CreateTable returns the CREATE TABLE statement of t for class.
func (d Dialect) CreateTable(t *Table, class wdhistory.Classification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", t.For(class))
	for _, c := range t.Columns {
		fmt.Fprintf(&sb, "\t%s %s,\n", c.Name, d.Types[c.Type])
	}
	fmt.Fprintf(&sb, "\tPRIMARY KEY (%s)\n)", strings.Join(t.Key, ", "))
	return sb.String()
}

// Schema returns every CREATE TABLE statement for every class.
func (d Dialect) Schema() []string {
	var stmts []string
	for _, class := range wdhistory.Classifications {
		for _, t := range Tables {
			if t.Features && !class.HasFeatures() {
				continue
			}
			stmts = append(stmts, d.CreateTable(t, class))
		}
	}
	return stmts
}

func cols(spec ...interface{}) []Column {
	out := make([]Column, 0, len(spec)/2)
	for i := 0; i < len(spec); i += 2 {
		out = append(out, Column{Name: spec[i].(string), Type: spec[i+1].(ColumnType)})
	}
	return out
}

// changeCols are shared by the four change tables.
var changeCols = cols(
	"entity_id", Text,
	"edited_at", Timestamp,
	"user_id", Integer,
	"actor", Text,
	"change_type", Text,
	"old_value", Text,
	"new_value", Text,
	"old_datatype", Text,
	"new_datatype", Text,
	"old_hash", Text,
	"new_hash", Text,
)

func with(cs ...[]Column) []Column {
	var out []Column
	for _, c := range cs {
		out = append(out, c...)
	}
	return out
}

// The output tables, in flush order.
var (
	RevisionTable = &Table{
		Name: "revision",
		Columns: cols(
			"revision_id", Integer,
			"entity_id", Text,
			"parent_id", Integer,
			"file", Text,
			"edited_at", Timestamp,
			"user_id", Integer,
			"username", Text,
			"actor", Text,
			"comment", Text,
			"changes", Integer,
			"decodable", Boolean,
		),
		Key: []string{"revision_id"},
	}
	ValueChangeTable = &Table{
		Name: "value_change",
		Columns: with(
			cols("revision_id", Integer, "property_id", Integer, "value_id", Text, "change_target", Text),
			changeCols,
			cols("magnitude", Real, "is_reverted", Boolean, "is_reversion", Boolean),
		),
		Key: []string{"revision_id", "property_id", "value_id", "change_target"},
	}
	QualifierChangeTable = &Table{
		Name: "qualifier_change",
		Columns: with(
			cols("revision_id", Integer, "property_id", Integer, "value_id", Text, "qualifier_property_id", Integer, "snak_hash", Text),
			changeCols,
		),
		Key: []string{"revision_id", "property_id", "value_id", "qualifier_property_id", "snak_hash"},
	}
	ReferenceChangeTable = &Table{
		Name: "reference_change",
		Columns: with(
			cols("revision_id", Integer, "property_id", Integer, "value_id", Text, "reference_hash", Text, "reference_property_id", Integer, "snak_hash", Text),
			changeCols,
		),
		Key: []string{"revision_id", "property_id", "value_id", "reference_hash", "reference_property_id", "snak_hash"},
	}
	MetadataChangeTable = &Table{
		Name: "datatype_metadata_change",
		Columns: with(
			cols("revision_id", Integer, "property_id", Integer, "value_id", Text, "metadata_key", Text),
			changeCols,
		),
		Key: []string{"revision_id", "property_id", "value_id", "metadata_key"},
	}

	featureKey  = []string{"revision_id", "property_id", "value_id"}
	featureCols = cols("revision_id", Integer, "property_id", Integer, "value_id", Text)

	TextFeatureTable = &Table{
		Name: "features_text",
		Columns: with(featureCols, cols(
			"length_diff_abs", Integer,
			"token_count_old", Integer,
			"token_count_new", Integer,
			"token_overlap", Real,
			"old_in_new", Boolean,
			"new_in_old", Boolean,
			"levenshtein_distance", Integer,
			"edit_distance_ratio", Real,
			"complete_replacement", Boolean,
			"case_only", Boolean,
			"has_significant_prefix", Boolean,
			"has_significant_suffix", Boolean,
		)),
		Key:      featureKey,
		Features: true,
	}
	TimeFeatureTable = &Table{
		Name: "features_time",
		Columns: with(featureCols, cols(
			"day_diff", Real,
			"year_changed", Boolean,
			"month_changed", Boolean,
			"day_changed", Boolean,
			"sign_change", Boolean,
			"precision_diff", Integer,
			"calendar_changed", Boolean,
		)),
		Key:      featureKey,
		Features: true,
	}
	QuantityFeatureTable = &Table{
		Name: "features_quantity",
		Columns: with(featureCols, cols(
			"value_diff", Real,
			"relative_value_diff_abs", Real,
			"sign_change", Boolean,
			"whole_number_change", Boolean,
			"precision_diff", Integer,
			"shared_prefix_length", Integer,
			"unit_changed", Boolean,
		)),
		Key:      featureKey,
		Features: true,
	}
	GlobeFeatureTable = &Table{
		Name: "features_globecoordinate",
		Columns: with(featureCols, cols(
			"coordinate_distance_km", Real,
			"relative_value_diff_latitude", Real,
			"relative_value_diff_longitude", Real,
			"latitude_sign_change", Boolean,
			"longitude_sign_change", Boolean,
			"old_geohash", Text,
			"new_geohash", Text,
			"geohash_shared_prefix", Integer,
		)),
		Key:      featureKey,
		Features: true,
	}
	EntityFeatureTable = &Table{
		Name: "features_entity",
		Columns: with(featureCols, cols(
			"old_value_label", Text,
			"new_value_label", Text,
			"old_value_description", Text,
			"new_value_description", Text,
			"old_value_subclass_new_value", Boolean,
			"new_value_subclass_old_value", Boolean,
			"old_value_part_of_new_value", Boolean,
			"new_value_part_of_old_value", Boolean,
			"old_value_located_in_new_value", Boolean,
			"new_value_located_in_old_value", Boolean,
		)),
		Key:      featureKey,
		Features: true,
	}
	PropertyTimeStatsTable = &Table{
		Name: "entity_property_time_stats",
		Columns: cols(
			"entity_id", Text,
			"property_id", Integer,
			"year_month", Text,
			"changes", Integer,
			"creates", Integer,
			"deletes", Integer,
			"updates", Integer,
			"reverted", Integer,
		),
		Key: []string{"entity_id", "property_id", "year_month"},
	}
	EntityStatsTable = &Table{
		Name: "entity_stats",
		Columns: cols(
			"entity_id", Text,
			"label", Text,
			"revisions", Integer,
			"changes", Integer,
			"undecodable", Integer,
			"user_edits", Integer,
			"bot_edits", Integer,
			"anonymous_edits", Integer,
			"reverted_edits", Integer,
			"reverted_creates", Integer,
			"reverted_deletes", Integer,
			"reverted_updates", Integer,
			"reversions", Integer,
			"first_edit", Timestamp,
			"last_edit", Timestamp,
		),
		Key: []string{"entity_id"},
	}

	// Tables lists every table in flush order.
	Tables = []*Table{
		RevisionTable,
		ValueChangeTable,
		QualifierChangeTable,
		ReferenceChangeTable,
		MetadataChangeTable,
		TextFeatureTable,
		TimeFeatureTable,
		QuantityFeatureTable,
		GlobeFeatureTable,
		EntityFeatureTable,
		PropertyTimeStatsTable,
		EntityStatsTable,
	}
)

// TableFor returns the table for a Change of category cat.
func TableFor(cat wdhistory.Category) *Table {
	switch cat {
	case wdhistory.CategoryQualifier:
		return QualifierChangeTable
	case wdhistory.CategoryReference:
		return ReferenceChangeTable
	case wdhistory.CategoryMetadata:
		return MetadataChangeTable
	default:
		return ValueChangeTable
	}
}
