package pipeline

import (
	"sort"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/codec"
	"github.com/pilosa/wdhistory/diff"
	"github.com/pilosa/wdhistory/features"
	"github.com/pilosa/wdhistory/lookup"
	"github.com/pilosa/wdhistory/revert"
	"github.com/pilosa/wdhistory/store"
	"github.com/pkg/errors"
)

// Env is what ProcessPage needs besides the page. A worker builds one
// around its own lookup handle.
type Env struct {
	Classifier *lookup.Classifier
	Features   *features.Extractor
	Revert     revert.Options
	Log        wdhistory.Logger
}

// NewEnv returns an Env backed by l. Lookup failures are logged and
// answered with defaults.
func NewEnv(l lookup.Lookups, lessRevisions int, log wdhistory.Logger) *Env {
	fb := lookup.NewFallback(l, log)
	return &Env{
		Classifier: lookup.NewClassifier(fb, lessRevisions),
		Features:   features.NewExtractor(fb),
		Log:        fb.Log,
	}
}

type revisionOutcome struct {
	rev       *wdhistory.RawRevision
	changes   int
	decodable bool
}

// ProcessPage folds over the revisions of page in timestamp order, carrying
// the previous snapshot, and returns every row produced for the entity.
// A revision whose body can't be decoded, is empty or redirects to another
// entity counts as deleting the entity.
func ProcessPage(page *wdhistory.Page, env *Env) (*store.Batch, error) {
	if page == nil {
		return nil, errors.New("nil page")
	}
	log := env.Log
	if log == nil {
		log = wdhistory.NopLogger{}
	}
	revs := make([]*wdhistory.RawRevision, len(page.Revisions))
	for i := range page.Revisions {
		revs[i] = &page.Revisions[i]
	}
	sort.SliceStable(revs, func(a, b int) bool {
		if !revs[a].Timestamp.Equal(revs[b].Timestamp) {
			return revs[a].Timestamp.Before(revs[b].Timestamp)
		}
		return revs[a].ID < revs[b].ID
	})

	stats := wdhistory.NewEntityStats(page.EntityID)
	outcomes := make([]revisionOutcome, 0, len(revs))
	var (
		prev  *wdhistory.Snapshot
		all   []wdhistory.Change
		feats features.Rows
	)
	for _, rev := range revs {
		stats.AddRevision(rev)
		cur, err := codec.Decode(rev.ID, rev.Text)
		decodable := err == nil
		if err != nil {
			if _, ok := err.(*codec.DecodeError); !ok {
				return nil, errors.Wrapf(err, "decoding revision %d of %s", rev.ID, page.EntityID)
			}
			log.Printf("%s: %v, treating the entity as deleted", page.EntityID, err)
			stats.Undecodable++
			cur = nil
		}
		if cur != nil && cur.Empty() {
			if cur.Redirect != "" {
				log.Debugf("%s: revision %d redirects to %s", page.EntityID, rev.ID, cur.Redirect)
			}
			cur = nil
		}
		changes := diff.Diff(prev, cur, diff.MetaOf(page.EntityID, rev))
		if env.Features != nil {
			feats.Append(env.Features.Extract(prev, cur, changes))
		}
		outcomes = append(outcomes, revisionOutcome{rev: rev, changes: len(changes), decodable: decodable})
		all = append(all, changes...)
		if cur != nil && cur.Label != nil {
			stats.Label = *cur.Label
		}
		prev = cur
	}

	cnt := revert.Detect(all, env.Revert)
	stats.RevertedEdits = cnt.Reverted
	stats.RevertedCreates = cnt.RevertedCreates
	stats.RevertedDeletes = cnt.RevertedDeletes
	stats.RevertedUpdates = cnt.RevertedUpdates
	stats.Reversions = cnt.Reversions
	stats.AddChanges(all)

	class := wdhistory.ClassDefault
	if env.Classifier != nil {
		var err error
		class, err = env.Classifier.Classify(lookup.TypesOf(prev), len(revs))
		if err != nil {
			return nil, errors.Wrapf(err, "classifying %s", page.EntityID)
		}
	}

	b := store.NewBatch(page.EntityID)
	b.Class = class
	b.File = page.File
	b.Revisions = len(revs)
	b.Changes = len(all)
	for _, o := range outcomes {
		b.AddRevision(page, o.rev, o.changes, o.decodable)
	}
	b.AddChanges(all)
	if class.HasFeatures() {
		b.AddFeatures(&feats)
	}
	b.AddPropertyMonths(store.PropertyMonths(all))
	b.AddStats(stats)
	return b, nil
}
