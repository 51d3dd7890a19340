package lookup

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
)

// Main loads TSV exports of property labels, entity info and relation edges
// into a bolt cache that ingest workers can open read-only.
type Main struct {
	Cache      string `help:"Bolt file to write."`
	Properties string `help:"TSV of property id and label."`
	Entities   string `help:"TSV of entity id, label, description and comma separated P31 types."`
	SubclassOf string `help:"TSV of child and parent entity ids related by P279."`
	PartOf     string `help:"TSV of child and parent entity ids related by P361."`
	LocatedIn  string `help:"TSV of child and parent entity ids related by P131."`

	Static *Static `flag:"-"`
}

// NewMain returns a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Cache: "lookups.db",
	}
}

func readFile(path string, read func(r io.Reader) error) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening")
	}
	defer f.Close()
	return errors.Wrapf(read(f), "reading %s", path)
}

// Run reads every configured file and writes the cache.
func (m *Main) Run() error {
	m.Static = NewStatic()
	s := m.Static
	if err := readFile(m.Properties, s.ReadProperties); err != nil {
		return err
	}
	if err := readFile(m.Entities, s.ReadEntities); err != nil {
		return err
	}
	for relation, path := range map[string]string{SubclassOf: m.SubclassOf, PartOf: m.PartOf, LocatedIn: m.LocatedIn} {
		relation := relation
		err := readFile(path, func(r io.Reader) error {
			return s.ReadEdges(relation, r)
		})
		if err != nil {
			return err
		}
	}

	bc, err := NewBoltCache(m.Cache)
	if err != nil {
		return errors.Wrap(err, "opening cache")
	}
	if err := bc.LoadStatic(s); err != nil {
		bc.Close()
		return errors.Wrap(err, "writing cache")
	}
	log.Printf("cached %d properties, %d entities and %d relations in %s", len(s.Properties), len(s.Infos), len(s.Relations()), m.Cache)
	return errors.Wrap(bc.Close(), "closing cache")
}
