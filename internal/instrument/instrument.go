// Package instrument holds the reference data for tradeable instruments:
// the alias table mapping incoming ticker tokens to canonical ids, and the
// pip/point unit conversion used to turn stop/target distances into price
// deltas.
package instrument

import (
	"strings"
)

// Kind classifies an instrument for unit-conversion purposes.
type Kind string

const (
	KindFX    Kind = "fx"
	KindMetal Kind = "metal"
	KindIndex Kind = "index"
)

// UnitKind is the unit a client expressed a stop/target distance in.
type UnitKind string

const (
	UnitPips   UnitKind = "pips"
	UnitPoints UnitKind = "points"
	UnitPrice  UnitKind = "price"
)

// defaultFXPip is used when a caller asks for pips on an instrument that
// carries no pip metadata. Some alert sources mislabel units, so conversion
// degrades instead of failing.
const defaultFXPip = 0.0001

// Meta is the read-only reference record for one instrument. Loaded once at
// startup, never mutated at request time.
type Meta struct {
	ID      string   `yaml:"id"`
	Kind    Kind     `yaml:"kind"`
	Pip     float64  `yaml:"pip,omitempty"`
	Point   float64  `yaml:"point,omitempty"`
	Aliases []string `yaml:"aliases"`
}

// Table resolves raw ticker tokens to canonical ids and converts distance
// units to price deltas.
type Table struct {
	metas   map[string]Meta
	aliases map[string]string
}

// NewTable builds the alias lookup from instrument metadata. Each canonical
// id maps to itself plus every declared alias, normalized.
func NewTable(metas []Meta) *Table {
	t := &Table{
		metas:   make(map[string]Meta, len(metas)),
		aliases: make(map[string]string),
	}
	for _, m := range metas {
		t.metas[m.ID] = m
		t.aliases[Normalize(m.ID)] = m.ID
		for _, a := range m.Aliases {
			t.aliases[Normalize(a)] = m.ID
		}
	}
	return t
}

// DefaultMetas returns the built-in instrument set.
func DefaultMetas() []Meta {
	return []Meta{
		{ID: "EUR_USD", Kind: KindFX, Pip: 0.0001, Aliases: []string{"EURUSD", "FX:EURUSD", "OANDA:EURUSD"}},
		{ID: "GBP_USD", Kind: KindFX, Pip: 0.0001, Aliases: []string{"GBPUSD", "FX:GBPUSD", "OANDA:GBPUSD"}},
		{ID: "USD_JPY", Kind: KindFX, Pip: 0.01, Aliases: []string{"USDJPY", "FX:USDJPY", "OANDA:USDJPY"}},
		{ID: "XAU_USD", Kind: KindMetal, Point: 0.1, Aliases: []string{"XAUUSD", "GOLD", "OANDA:XAUUSD", "FOREXCOM:XAUUSD"}},
		{ID: "US30_USD", Kind: KindIndex, Point: 1.0, Aliases: []string{"US30", "US30USD", "OANDA:US30USD", "DJI", "US30.CASH"}},
		{ID: "NAS100_USD", Kind: KindIndex, Point: 1.0, Aliases: []string{"NAS100", "US100", "NAS100USD", "OANDA:NAS100USD"}},
	}
}

// DefaultTable returns a table over the built-in instrument set.
func DefaultTable() *Table {
	return NewTable(DefaultMetas())
}

// Normalize uppercases a token and strips the separators alert platforms
// decorate symbols with (exchange prefixes, cash suffixes).
func Normalize(token string) string {
	s := strings.ToUpper(strings.TrimSpace(token))
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, ".", "")
	return s
}

// Resolve maps a raw ticker token to its canonical id. Unknown tokens pass
// through normalized but unchanged; the allow-list downstream is the gate.
func (t *Table) Resolve(raw string) string {
	norm := Normalize(raw)
	if id, ok := t.aliases[norm]; ok {
		return id
	}
	return norm
}

// Lookup returns the metadata for a canonical id.
func (t *Table) Lookup(id string) (Meta, bool) {
	m, ok := t.metas[id]
	return m, ok
}

// PriceDelta converts a quantity expressed in pips, points, or absolute
// price into a price delta for the instrument.
//
// The fallback hierarchy is deliberately permissive: unknown unit kinds are
// treated as points, points on an fx instrument fall back to its pip size,
// and missing pip metadata falls back to the generic fx pip.
func (t *Table) PriceDelta(id string, qty float64, unit UnitKind) float64 {
	if unit == UnitPrice {
		return qty
	}

	meta := t.metas[id]

	if unit == UnitPips {
		pip := meta.Pip
		if pip == 0 {
			pip = defaultFXPip
		}
		return qty * pip
	}

	// points, or anything unrecognized
	if meta.Kind == KindIndex || meta.Kind == KindMetal {
		point := meta.Point
		if point == 0 {
			point = 1.0
		}
		return qty * point
	}

	pip := meta.Pip
	if pip == 0 {
		pip = defaultFXPip
	}
	return qty * pip
}
