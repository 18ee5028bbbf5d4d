// Package cardpack loads card packs from YAML files and serves them to
// duels as a card database.
package cardpack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardscript"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

var (
	ErrDuplicatePack = errors.New("pack already loaded")
	ErrUnknownDeck   = errors.New("unknown deck")
)

// PackFile is the YAML structure of a pack.
type PackFile struct {
	ID    string      `yaml:"id"`
	Name  string      `yaml:"name"`
	Cards []CardEntry `yaml:"cards"`
	Decks []DeckEntry `yaml:"decks"`
}

// CardEntry is one card definition of a pack.
type CardEntry struct {
	ID          uint32      `yaml:"id"`
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Requirement string      `yaml:"requirement"`
	Cost        int         `yaml:"cost"`
	Attack      int         `yaml:"attack"`
	Health      int         `yaml:"health"`
	Archetype   string      `yaml:"archetype"`
	Script      *ScriptYAML `yaml:"script"`
}

// ScriptYAML selects the behavior of a card. At most one field is set.
type ScriptYAML struct {
	Special *int           `yaml:"special"`
	Lua     string         `yaml:"lua"`
	User    map[string]any `yaml:"user"`
}

// DeckEntry is a named deck made of cards of the same pack.
type DeckEntry struct {
	Name  string      `yaml:"name"`
	Cards []DeckCount `yaml:"cards"`
}

// DeckCount is a card and its number of copies in a deck.
type DeckCount struct {
	Card  uint32 `yaml:"card"`
	Count int    `yaml:"count"`
}

// Pack is a parsed pack.
type Pack struct {
	ID    uuid.UUID
	Name  string
	Cards map[uint32]*duel.CardDefinition
	Decks map[string][]duel.QualCardRef
}

// Ref returns the qualified reference of a card of the pack.
func (p *Pack) Ref(cardID uint32) duel.QualCardRef {
	return duel.QualCardRef{PackID: p.ID, CardID: cardID}
}

// Parse decodes and validates a pack document.
func Parse(data []byte) (*Pack, error) {
	var pf PackFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pack YAML: %w", err)
	}
	id, err := uuid.Parse(pf.ID)
	if err != nil {
		return nil, fmt.Errorf("pack %q: invalid id: %w", pf.Name, err)
	}

	p := &Pack{
		ID:    id,
		Name:  pf.Name,
		Cards: make(map[uint32]*duel.CardDefinition, len(pf.Cards)),
		Decks: make(map[string][]duel.QualCardRef, len(pf.Decks)),
	}
	for _, ce := range pf.Cards {
		if _, dup := p.Cards[ce.ID]; dup {
			return nil, fmt.Errorf("pack %q: duplicate card id %d", pf.Name, ce.ID)
		}
		def, err := ce.definition()
		if err != nil {
			return nil, fmt.Errorf("pack %q: card %d: %w", pf.Name, ce.ID, err)
		}
		p.Cards[ce.ID] = def
	}
	for _, de := range pf.Decks {
		var refs []duel.QualCardRef
		for _, dc := range de.Cards {
			if _, ok := p.Cards[dc.Card]; !ok {
				return nil, fmt.Errorf("pack %q: deck %q: unknown card %d", pf.Name, de.Name, dc.Card)
			}
			for i := 0; i < dc.Count; i++ {
				refs = append(refs, p.Ref(dc.Card))
			}
		}
		p.Decks[de.Name] = refs
	}
	return p, nil
}

// LoadFile reads and parses the pack at path.
func LoadFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func (ce CardEntry) definition() (*duel.CardDefinition, error) {
	def := &duel.CardDefinition{
		Name:      ce.Name,
		Cost:      ce.Cost,
		Attack:    ce.Attack,
		Health:    ce.Health,
		Archetype: ce.Archetype,
	}
	switch strings.ToLower(ce.Type) {
	case "unit", "":
		def.Type = duel.CardUnit
		if ce.Health < 1 {
			return nil, fmt.Errorf("unit health must be at least 1, got %d", ce.Health)
		}
	case "spell":
		def.Type = duel.CardSpell
	default:
		return nil, fmt.Errorf("unknown card type %q", ce.Type)
	}
	switch ce.Requirement {
	case "", "none":
		def.Requirement = duel.RequireNone
	case "singleSlot":
		def.Requirement = duel.RequireSingleSlot
	case "singleEntity":
		def.Requirement = duel.RequireSingleEntity
	default:
		return nil, fmt.Errorf("unknown requirement %q", ce.Requirement)
	}
	if ce.Cost < 0 || ce.Attack < 0 {
		return nil, errors.New("cost and attack cannot be negative")
	}

	spec, err := ce.Script.spec()
	if err != nil {
		return nil, err
	}
	def.Script = spec
	return def, nil
}

func (s *ScriptYAML) spec() (*duel.ScriptSpec, error) {
	if s == nil {
		return nil, nil
	}
	set := 0
	spec := &duel.ScriptSpec{}
	if s.Special != nil {
		set++
		spec.SpecialID = s.Special
	}
	if s.Lua != "" {
		set++
		spec.Lua = s.Lua
	}
	if s.User != nil {
		set++
		sc, err := cardscript.FromValue(s.User)
		if err != nil {
			return nil, err
		}
		spec.User = sc
	}
	switch set {
	case 0:
		return nil, nil
	case 1:
		return spec, nil
	default:
		return nil, errors.New("a card has at most one script")
	}
}

// Database holds every loaded pack. It is read-only once built and safe
// for concurrent use by duels.
type Database struct {
	packs map[uuid.UUID]*Pack
	defs  map[duel.QualCardRef]*duel.CardDefinition
	refs  []duel.QualCardRef
}

func NewDatabase() *Database {
	return &Database{
		packs: make(map[uuid.UUID]*Pack),
		defs:  make(map[duel.QualCardRef]*duel.CardDefinition),
	}
}

// Load builds a database from pack files. A directory loads every .yaml
// and .yml file it contains.
func Load(paths ...string) (*Database, error) {
	db := NewDatabase()
	for _, path := range paths {
		files, err := packFiles(path)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			p, err := LoadFile(f)
			if err != nil {
				return nil, err
			}
			if err := db.Add(p); err != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
		}
	}
	return db, nil
}

func packFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Add registers a pack. Refs stay ordered by pack then card id.
func (db *Database) Add(p *Pack) error {
	if _, dup := db.packs[p.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicatePack, p.ID)
	}
	db.packs[p.ID] = p

	ids := make([]uint32, 0, len(p.Cards))
	for id := range p.Cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		ref := p.Ref(id)
		db.defs[ref] = p.Cards[id]
		db.refs = append(db.refs, ref)
	}
	return nil
}

func (db *Database) Card(ref duel.QualCardRef) (*duel.CardDefinition, bool) {
	def, ok := db.defs[ref]
	return def, ok
}

func (db *Database) Refs() []duel.QualCardRef {
	return append([]duel.QualCardRef(nil), db.refs...)
}

// Packs returns the loaded packs sorted by name.
func (db *Database) Packs() []*Pack {
	out := make([]*Pack, 0, len(db.packs))
	for _, p := range db.packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Deck finds a deck by name across every pack.
func (db *Database) Deck(name string) ([]duel.QualCardRef, error) {
	for _, p := range db.Packs() {
		if d, ok := p.Decks[name]; ok {
			return append([]duel.QualCardRef(nil), d...), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDeck, name)
}
