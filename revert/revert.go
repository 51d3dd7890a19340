// Package revert marks changes which were later undone (reverted) and the
// changes which undid them (reversions).
package revert

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pilosa/wdhistory"
)

// DefaultWindow is how far after a change an inverse change still counts as
// its revert without a revert keyword in the comment.
const DefaultWindow = 7 * 24 * time.Hour

var keywordRE = regexp.MustCompile(`(?i)(revert|undo|undid|rollback|restore|\brv\b)`)

// HasKeyword reports whether an edit comment announces a revert.
func HasKeyword(comment string) bool {
	return keywordRE.MatchString(comment)
}

// Options configures Detect.
type Options struct {
	Window time.Duration
}

// Counters summarizes the flags set by Detect.
type Counters struct {
	Reverted        int64
	RevertedCreates int64
	RevertedDeletes int64
	RevertedUpdates int64
	Reversions      int64
}

type key struct {
	property int64
	value    string
	target   string
}

// Detect sets Reverted and Reversion on the value changes of one entity.
// Qualifier, reference and metadata changes are left untouched. Flags are
// reset first, so Detect is idempotent. Changes of the same property, value
// id and target are compared in timestamp order.
func Detect(changes []wdhistory.Change, opts Options) Counters {
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	for i := range changes {
		changes[i].Reverted, changes[i].Reversion = false, false
	}

	groups := make(map[key][]int)
	var order []key
	var ranks []int
	for i := range changes {
		c := &changes[i]
		if c.Category() != wdhistory.CategoryValue || c.Target == wdhistory.TargetProperty {
			continue
		}
		if c.Target == wdhistory.TargetRank {
			ranks = append(ranks, i)
			continue
		}
		k := key{c.PropertyID, c.ValueID, c.Target}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	for _, k := range order {
		detectGroup(changes, groups[k], opts.Window)
	}
	resolveRanks(changes, ranks, groups, opts.Window)

	var cnt Counters
	for i := range changes {
		c := &changes[i]
		if c.Reverted {
			cnt.Reverted++
			switch {
			case c.Kind.IsCreate():
				cnt.RevertedCreates++
			case c.Kind.IsDelete():
				cnt.RevertedDeletes++
			default:
				cnt.RevertedUpdates++
			}
		}
		if c.Reversion {
			cnt.Reversions++
		}
	}
	return cnt
}

func detectGroup(changes []wdhistory.Change, idx []int, window time.Duration) {
	sort.SliceStable(idx, func(a, b int) bool {
		return changes[idx[a]].Timestamp.Before(changes[idx[b]].Timestamp)
	})
	for a := 0; a < len(idx); a++ {
		ci := &changes[idx[a]]
		oldI, newI := states(ci)
		for b := a + 1; b < len(idx); b++ {
			cj := &changes[idx[b]]
			oldJ, newJ := states(cj)
			inverse := (oldI != "" && newJ != "" && oldI == newJ) ||
				(oldI == "" && newJ == "" && newI == oldJ)
			if !inverse {
				continue
			}
			if !HasKeyword(cj.Comment) && cj.Timestamp.Sub(ci.Timestamp) > window {
				continue
			}
			ci.Reverted = true
			cj.Reversion = true
			for m := a + 1; m < b; m++ {
				changes[idx[m]].Reverted = true
			}
			break
		}
	}
}

// states returns what a change compares on: statement hashes, or the values
// themselves for labels, descriptions, coordinates and ranks, which have no
// hash of their own.
func states(c *wdhistory.Change) (old, new string) {
	if c.IsLabelOrDescription() || c.Target != wdhistory.TargetValue {
		return strings.TrimSpace(wdhistory.ValueString(c.Old)), strings.TrimSpace(wdhistory.ValueString(c.New))
	}
	return c.OldHash, c.NewHash
}

// resolveRanks gives a rank change the flags of the value change of the same
// statement in the same revision. Rank changes without one are matched
// among themselves by rank value.
func resolveRanks(changes []wdhistory.Change, ranks []int, groups map[key][]int, window time.Duration) {
	orphans := make(map[key][]int)
	var order []key
	for _, i := range ranks {
		c := &changes[i]
		parent := -1
		for _, j := range groups[key{c.PropertyID, c.ValueID, wdhistory.TargetValue}] {
			if changes[j].RevisionID == c.RevisionID {
				parent = j
				break
			}
		}
		if parent >= 0 {
			c.Reverted, c.Reversion = changes[parent].Reverted, changes[parent].Reversion
			continue
		}
		k := key{c.PropertyID, c.ValueID, wdhistory.TargetRank}
		if _, ok := orphans[k]; !ok {
			order = append(order, k)
		}
		orphans[k] = append(orphans[k], i)
	}
	for _, k := range order {
		detectGroup(changes, orphans[k], window)
	}
}
