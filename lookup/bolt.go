package lookup

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var (
	propertyBucket = []byte("properties")
	entityBucket   = []byte("entities")
	closureBucket  = []byte("closure")
)

// BoltCache stores lookups in a bolt file. The transitive closure of each
// relation is stored precomputed so that IsAncestor is a single read.
type BoltCache struct {
	Db *bolt.DB
}

// NewBoltCache opens (creating if needed) the bolt file at filename for
// loading.
func NewBoltCache(filename string) (bc *BoltCache, err error) {
	bc = &BoltCache{}
	bc.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second, NoGrowSync: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening lookup cache '%v'", filename)
	}
	err = bc.Db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{propertyBucket, entityBucket, closureBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "creating %s bucket", name)
			}
		}
		return nil
	})
	if err != nil {
		bc.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return bc, nil
}

// Close syncs and closes the underlying bolt file.
func (bc *BoltCache) Close() error {
	err := bc.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return bc.Db.Close()
}

// LoadProperties stores property labels keyed by property id.
func (bc *BoltCache) LoadProperties(labels map[string]string) error {
	return bc.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(propertyBucket)
		for pid, label := range labels {
			if err := b.Put([]byte(pid), []byte(label)); err != nil {
				return errors.Wrapf(err, "putting property %s", pid)
			}
		}
		return nil
	})
}

// LoadEntities stores entity info keyed by entity id.
func (bc *BoltCache) LoadEntities(infos map[string]EntityInfo) error {
	return bc.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entityBucket)
		for id, info := range infos {
			data, err := json.Marshal(info)
			if err != nil {
				return errors.Wrapf(err, "marshaling entity %s", id)
			}
			if err := b.Put([]byte(id), data); err != nil {
				return errors.Wrapf(err, "putting entity %s", id)
			}
		}
		return nil
	})
}

// LoadClosure stores the transitive closure of every relation in s.
func (bc *BoltCache) LoadClosure(s *Static) error {
	return bc.Db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(closureBucket)
		for _, rel := range s.Relations() {
			rb, err := cb.CreateBucketIfNotExists([]byte(rel))
			if err != nil {
				return errors.Wrapf(err, "creating closure bucket for %s", rel)
			}
			for _, child := range s.Children(rel) {
				anc := s.Ancestors(child, rel)
				if err := rb.Put([]byte(child), []byte(strings.Join(anc, "\n"))); err != nil {
					return errors.Wrapf(err, "putting ancestors of %s", child)
				}
			}
		}
		return nil
	})
}

// LoadStatic stores everything in s.
func (bc *BoltCache) LoadStatic(s *Static) error {
	if err := bc.LoadProperties(s.Properties); err != nil {
		return errors.Wrap(err, "loading properties")
	}
	if err := bc.LoadEntities(s.Infos); err != nil {
		return errors.Wrap(err, "loading entities")
	}
	return errors.Wrap(bc.LoadClosure(s), "loading closure")
}

// PropertyLabel implements PropertyLabels.
func (bc *BoltCache) PropertyLabel(pid string) (label string, err error) {
	err = bc.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(propertyBucket)
		if b == nil {
			return ErrUnavailable
		}
		label = string(b.Get([]byte(pid)))
		return nil
	})
	return label, err
}

// Entity implements Entities.
func (bc *BoltCache) Entity(id string) (info EntityInfo, err error) {
	err = bc.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entityBucket)
		if b == nil {
			return ErrUnavailable
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		return errors.Wrapf(json.Unmarshal(data, &info), "decoding entity %s", id)
	})
	return info, err
}

// IsAncestor implements Closure.
func (bc *BoltCache) IsAncestor(child, ancestor, relation string) (found bool, err error) {
	err = bc.Db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket(closureBucket)
		if cb == nil {
			return ErrUnavailable
		}
		rb := cb.Bucket([]byte(relation))
		if rb == nil {
			return nil
		}
		for _, a := range strings.Split(string(rb.Get([]byte(child))), "\n") {
			if a == ancestor && a != "" {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// BoltOpener opens read-only handles on a bolt file written by BoltCache.
type BoltOpener struct {
	Path string
}

// Open implements Opener.
func (o BoltOpener) Open() (Handle, error) {
	db, err := bolt.Open(o.Path, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening lookup cache '%v' read-only", o.Path)
	}
	return &boltHandle{BoltCache{Db: db}}, nil
}

type boltHandle struct {
	BoltCache
}

// Close closes the read-only file without syncing.
func (h *boltHandle) Close() error {
	return h.Db.Close()
}
