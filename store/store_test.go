package store

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/features"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func count(t *testing.T, s *SQLiteStore, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

var ts = time.Date(2016, 5, 4, 3, 2, 1, 0, time.UTC)

func page(id string) *wdhistory.Page {
	return &wdhistory.Page{EntityID: id, Title: id, File: "dump.xml.bz2"}
}

func rev(id int64) *wdhistory.RawRevision {
	return &wdhistory.RawRevision{ID: id, Timestamp: ts, Contributor: wdhistory.Contributor{ID: 3, Username: "Alice"}}
}

func changes(revID int64) []wdhistory.Change {
	mag := 2.5
	base := wdhistory.Change{EntityID: "Q1", RevisionID: revID, Timestamp: ts, UserID: 3, PropertyID: 31, ValueID: "Q1$a"}
	value := base
	value.Kind, value.Old, value.New, value.Magnitude = wdhistory.UpdatePropertyValue, wdhistory.EntityValue("Q5"), wdhistory.EntityValue("Q6"), &mag
	rank := base
	rank.Kind, rank.Target, rank.Old, rank.New = wdhistory.UpdateRank, wdhistory.TargetRank, wdhistory.StringValue("normal"), wdhistory.StringValue("preferred")
	qual := base
	qual.Kind, qual.Snak, qual.New = wdhistory.CreateQualifierValue, &wdhistory.SnakRef{PropertyID: 580, Hash: "qh"}, wdhistory.TimeValue("+2001-00-00T00:00:00Z")
	ref := base
	ref.Kind, ref.Snak = wdhistory.DeleteReference, &wdhistory.SnakRef{ReferenceHash: "rh"}
	md := base
	md.Kind, md.MetadataKey, md.Old = wdhistory.UpdatePropertyDatatypeMetadata, "precision", wdhistory.RawValue("9")
	return []wdhistory.Change{value, rank, qual, ref, md}
}

func fullBatch(entityID string, revIDs ...int64) *Batch {
	b := NewBatch(entityID)
	var all []wdhistory.Change
	for _, id := range revIDs {
		cs := changes(id)
		b.AddRevision(page(entityID), rev(id), len(cs), true)
		b.AddChanges(cs)
		all = append(all, cs...)
		b.AddFeatures(&features.Rows{
			Text:     []features.Text{{Key: features.Key{RevisionID: id, PropertyID: -1, ValueID: "label"}}},
			Time:     []features.Time{{Key: features.Key{RevisionID: id, PropertyID: 569, ValueID: "Q1$t"}}},
			Quantity: []features.Quantity{{Key: features.Key{RevisionID: id, PropertyID: 1082, ValueID: "Q1$q"}}},
			Globe:    []features.Globe{{Key: features.Key{RevisionID: id, PropertyID: 625, ValueID: "Q1$g"}, OldGeohash: "u33d"}},
			Entity:   []features.Entity{{Key: features.Key{RevisionID: id, PropertyID: 31, ValueID: "Q1$a"}, OldLabel: "human"}},
		})
	}
	b.AddPropertyMonths(PropertyMonths(all))
	st := wdhistory.NewEntityStats(entityID)
	st.AddRevision(rev(revIDs[0]))
	st.AddChanges(all)
	b.AddStats(st)
	b.Revisions = len(revIDs)
	return b
}

func TestSchema(t *testing.T) {
	s := newSQLite(t)
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&n))
	require.Equal(t, 4*7+2*5, n)
	// idempotent
	require.NoError(t, s.EnsureSchema(context.Background()))

	for _, stmt := range Postgres.Schema() {
		require.NotContains(t, stmt, "REAL")
	}
	require.Contains(t, SQLite.CreateTable(ValueChangeTable, wdhistory.ClassScholarlyArticle),
		"CREATE TABLE IF NOT EXISTS value_change_sa (")
}

func TestRowsMatchColumns(t *testing.T) {
	b := fullBatch("Q1", 10)
	for _, tbl := range Tables {
		rows := b.Rows[tbl.Name]
		require.NotEmpty(t, rows, tbl.Name)
		for _, row := range rows {
			require.Len(t, row, len(tbl.Columns), tbl.Name)
		}
	}
}

func TestBulkInsertIdempotent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	b := fullBatch("Q1", 10, 11)
	for i := 0; i < 2; i++ {
		for _, tbl := range Tables {
			require.NoError(t, s.BulkInsert(ctx, tbl.Name, tbl.ColumnNames(), b.Rows[tbl.Name]), tbl.Name)
		}
	}
	require.Equal(t, 2, count(t, s, "revision"))
	require.Equal(t, 4, count(t, s, "value_change"))
	require.Equal(t, 2, count(t, s, "qualifier_change"))
	require.Equal(t, 2, count(t, s, "reference_change"))
	require.Equal(t, 2, count(t, s, "datatype_metadata_change"))
	require.Equal(t, 1, count(t, s, "entity_property_time_stats"))
	require.Equal(t, 1, count(t, s, "entity_stats"))

	var kind string
	var reverted bool
	require.NoError(t, s.DB().QueryRow(
		"SELECT change_type, is_reverted FROM value_change WHERE revision_id = 10 AND change_target = 'rank'").Scan(&kind, &reverted))
	require.Equal(t, "UPDATE_RANK", kind)
	require.False(t, reverted)

	require.NoError(t, s.InsertRow(ctx, "revision", RevisionTable.ColumnNames(), b.Rows["revision"][0]))
	require.Error(t, s.InsertRow(ctx, "revision", RevisionTable.ColumnNames(), Row{1}))
}

func TestWriterBatchSize(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	w, err := NewResultWriter(s, OptWriterBatchSize(3), OptWriterFlushInterval(0))
	require.NoError(t, err)

	b := fullBatch("Q1", 1, 2)
	b.Class = wdhistory.ClassLessRevisions
	require.NoError(t, w.Add(ctx, b))
	require.Equal(t, 0, count(t, s, "revision_less"))
	require.NotZero(t, w.Pending(wdhistory.ClassLessRevisions))

	b = fullBatch("Q2", 3)
	b.Class = wdhistory.ClassLessRevisions
	require.NoError(t, w.Add(ctx, b))
	require.Equal(t, 3, count(t, s, "revision_less"))
	require.Equal(t, 3, count(t, s, "features_text_less"))
	require.Equal(t, 2, count(t, s, "entity_stats_less"))
	require.Zero(t, w.Pending(wdhistory.ClassLessRevisions))
	require.Equal(t, int64(1), w.Flushes())
	require.Equal(t, int64(3), w.Written()["revision_less"])
}

func TestWriterDropsFeaturesOfFeaturelessClasses(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	w, err := NewResultWriter(s)
	require.NoError(t, err)
	b := fullBatch("Q1", 1)
	b.Class = wdhistory.ClassAstronomicalObject
	require.NoError(t, w.Add(ctx, b))
	require.NoError(t, w.FlushAll(ctx))
	require.Equal(t, 1, count(t, s, "revision_ao"))
	require.Equal(t, 1, count(t, s, "entity_stats_ao"))
	require.Equal(t, 0, count(t, s, "features_text"))
}

func TestWriterFlushInterval(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	w, err := NewResultWriter(s, OptWriterFlushInterval(time.Minute))
	require.NoError(t, err)
	clock := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Add(ctx, fullBatch("Q1", 1)))
	require.Equal(t, 0, count(t, s, "revision"))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Add(ctx, fullBatch("Q2", 2)))
	require.Equal(t, 2, count(t, s, "revision"))
}

func TestWriterRun(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	w, err := NewResultWriter(s, OptWriterPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	in := make(chan *Batch)
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, in, 3) }()

	in <- fullBatch("Q1", 1)
	// the poll timeout flushes without reaching the batch size
	require.Eventually(t, func() bool { return count(t, s, "revision") == 1 }, 5*time.Second, 10*time.Millisecond)

	in <- nil
	in <- fullBatch("Q2", 2)
	in <- nil
	in <- fullBatch("Q3", 3)
	in <- nil
	require.NoError(t, <-errc)
	require.Equal(t, 3, count(t, s, "revision"))
	require.Equal(t, 3, count(t, s, "entity_stats"))
}

func TestWriterRunCanceled(t *testing.T) {
	w, err := NewResultWriter(newSQLite(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, w.Run(ctx, make(chan *Batch), 1))
}

type failingStore struct {
	Store
	bad string
}

func (f *failingStore) BulkInsert(ctx context.Context, table string, cols []string, rows []Row) error {
	return errors.New("constraint failed")
}

func (f *failingStore) InsertRow(ctx context.Context, table string, cols []string, row Row) error {
	if row[1] == f.bad {
		return errors.New("constraint failed")
	}
	return nil
}

func TestWriterPersistenceError(t *testing.T) {
	w, err := NewResultWriter(&failingStore{bad: "Q2"})
	require.NoError(t, err)
	b := fullBatch("Q1", 1)
	b.Add(RevisionTable, fullBatch("Q2", 2).Rows["revision"]...)
	require.NoError(t, w.Add(context.Background(), b))

	err = w.FlushAll(context.Background())
	pe, ok := err.(*PersistenceError)
	require.True(t, ok, "expected *PersistenceError, got %T: %v", err, err)
	require.Equal(t, "revision", pe.Table)
	require.Equal(t, 2, pe.Rows)
	require.Equal(t, []string{"revision_id=2"}, pe.Offending)
	require.Contains(t, pe.Error(), "revision_id=2")
}

type recordingMirror struct {
	mu     sync.Mutex
	tables map[string]int
}

func (m *recordingMirror) Publish(ctx context.Context, table string, cols []string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables == nil {
		m.tables = make(map[string]int)
	}
	m.tables[table] += len(rows)
	return nil
}

func TestWriterMirror(t *testing.T) {
	m := &recordingMirror{}
	w, err := NewResultWriter(newSQLite(t), OptWriterMirror(m))
	require.NoError(t, err)
	require.NoError(t, w.Add(context.Background(), fullBatch("Q1", 1)))
	require.NoError(t, w.FlushAll(context.Background()))
	require.Equal(t, map[string]int{
		"value_change":             2,
		"qualifier_change":         1,
		"reference_change":         1,
		"datatype_metadata_change": 1,
	}, m.tables)
}

func TestPropertyMonths(t *testing.T) {
	cs := changes(1)
	cs = append(cs, wdhistory.Change{PropertyID: 31, Kind: wdhistory.CreatePropertyValue, Timestamp: ts.AddDate(0, 1, 0), Reverted: true})
	cs = append(cs, wdhistory.Change{PropertyID: 18, Kind: wdhistory.DeletePropertyValue, Timestamp: ts})
	require.Equal(t, []PropertyMonth{
		{PropertyID: 31, Month: "2016-05", Changes: 2, Updates: 2},
		{PropertyID: 31, Month: "2016-06", Changes: 1, Creates: 1, Reverted: 1},
		{PropertyID: 18, Month: "2016-05", Changes: 1, Deletes: 1},
	}, PropertyMonths(cs))
}

func TestSchemaMain(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewSchemaMain()
	m.Dialect = "postgres"
	m.Stdout = buf
	require.NoError(t, m.Run())
	require.Contains(t, buf.String(), "CREATE TABLE IF NOT EXISTS value_change_ao (")
	require.Contains(t, buf.String(), "magnitude DOUBLE PRECISION")
	require.NotContains(t, buf.String(), "features_text_sa")

	m.Dialect = "oracle"
	require.Error(t, m.Run())

	m = NewSchemaMain()
	m.SQLitePath = filepath.Join(t.TempDir(), "schema.db")
	require.NoError(t, m.Run())
	s, err := NewSQLiteStore(m.SQLitePath)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 0, count(t, s, "revision_sa"))
}
