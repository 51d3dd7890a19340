// wdhistory turns compressed MediaWiki history dumps of a structured knowledge
// base into a normalized stream of atomic change records.
//
// The ingest pipeline has the following stages:
//
// 1. Reader
//
//    The dump reader streams an archive (bz2, xz or plain XML) and yields one
//    Page per qualifying entity. A Page holds the raw revisions of that entity
//    in file order. Pages of other namespaces are skipped while their title is
//    read, before any revision text is buffered.
//
// 2. Workers
//
//    A fixed number of workers drain a bounded queue of Pages. For each Page a
//    worker decodes every revision into a Snapshot, diffs consecutive
//    Snapshots into Changes, annotates reverts and produces one result batch.
//    One entity is always handled by one worker, so the order of its
//    revisions is preserved.
//
// 3. Writer
//
//    A single writer buffers result batches per Classification and bulk loads
//    them into SQL tables once a size or time threshold is reached. Every
//    table has a composite primary key so that re-delivered rows are ignored.
//
// The root package holds the types shared by all stages: pages, snapshots,
// typed values, changes and the Statter and Logger interfaces.
package wdhistory
