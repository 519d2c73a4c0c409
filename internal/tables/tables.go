// Package tables is the catalog of reference tables the service can sync
// and serve. The set is fixed at startup; sync targets outside it are
// rejected before any storage work happens.
package tables

import "strings"

// Kind is the storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindDecimal
	KindDate
)

// String returns the lowercase kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Column declares one wire field and the column it is stored in.
type Column struct {
	Name string
	Kind Kind

	// Scale is the number of fractional digits kept for KindDecimal.
	Scale int

	// Precision is the total number of digits a KindDecimal value may
	// hold once rounded to Scale. Zero means unbounded.
	Precision int

	// MaxLength bounds KindText values in runes. Zero means unbounded.
	MaxLength int

	// Required rejects null and blank values during sync.
	Required bool
}

// Computed is a read-time column derived as a signed sum of decimal
// columns. Nulls count as zero. It is never stored.
type Computed struct {
	Name  string
	Scale int
	Plus  []string
	Minus []string

	// Positive hides every row whose computed value is not > 0.
	Positive bool
}

// Table describes one synced reference table.
type Table struct {
	// Name is the SQL table name and the sync target identifier.
	Name string

	// Entity is the read-side name used in routes and cache keys.
	Entity string

	// Columns lists the wire columns in storage order. The surrogate
	// id column is not part of this list.
	Columns []Column

	// SearchFields are matched case-insensitively as substrings, ORed.
	SearchFields []string

	// Filters are optional case-insensitive equality filters, ANDed.
	Filters []string

	// Computed columns are appended to every emitted row.
	Computed []Computed
}

// Column returns the named column and its position.
func (t *Table) Column(name string) (Column, int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// ColumnNames returns the wire column names in storage order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasFilter reports whether name is one of the table's optional filters.
func (t *Table) HasFilter(name string) bool {
	for _, f := range t.Filters {
		if f == name {
			return true
		}
	}
	return false
}

// Positive returns the computed column that acts as a standing filter, if any.
func (t *Table) Positive() (Computed, bool) {
	for _, c := range t.Computed {
		if c.Positive {
			return c, true
		}
	}
	return Computed{}, false
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	return t.Name + " (" + strings.Join(t.ColumnNames(), ", ") + ")"
}

func text(name string, max int) Column {
	return Column{Name: name, Kind: KindText, MaxLength: max}
}

func integer(name string) Column {
	return Column{Name: name, Kind: KindInteger}
}

func decimal(name string, precision, scale int) Column {
	return Column{Name: name, Kind: KindDecimal, Scale: scale, Precision: precision}
}

func date(name string) Column {
	return Column{Name: name, Kind: KindDate}
}

// Clients is the rrc_clients table.
var Clients = &Table{
	Name:   "rrc_clients",
	Entity: "clients",
	Columns: []Column{
		text("code", 50),
		text("name", 255),
		text("address", 0),
		text("branch", 100),
		text("district", 100),
		text("state", 100),
		text("software", 100),
		text("mobile", 50),
		date("installationdate"),
		integer("priorty"),
		text("directdealing", 50),
		text("rout", 100),
		text("amc", 50),
		decimal("amcamt", 12, 2),
		text("accountcode", 50),
		text("address3", 0),
		text("lictype", 50),
		integer("clients"),
		integer("sp"),
		text("nature", 255),
	},
	SearchFields: []string{"name", "code", "district"},
}

// Master is the acc_master table. Only accounts with a positive balance
// are ever listed.
var Master = &Table{
	Name:   "acc_master",
	Entity: "master",
	Columns: []Column{
		text("code", 50),
		text("name", 255),
		text("super_code", 50),
		decimal("opening_balance", 15, 3),
		decimal("debit", 15, 3),
		decimal("credit", 15, 3),
		text("place", 100),
		text("phone2", 50),
		text("openingdepartment", 100),
	},
	SearchFields: []string{"name", "code", "place"},
	Computed: []Computed{{
		Name:     "balance",
		Scale:    3,
		Plus:     []string{"opening_balance", "debit"},
		Minus:    []string{"credit"},
		Positive: true,
	}},
}

// Products is the acc_product table.
var Products = &Table{
	Name:   "acc_product",
	Entity: "products",
	Columns: []Column{
		{Name: "code", Kind: KindText, MaxLength: 50, Required: true},
		text("name", 255),
		text("category", 100),
		text("unit", 30),
		text("taxcode", 30),
		text("company", 100),
		text("productline", 100),
		text("brand", 100),
		text("remarks", 0),
	},
	SearchFields: []string{"name", "code"},
	Filters:      []string{"category", "company", "brand"},
}

func init() {
	MustRegister(Clients)
	MustRegister(Master)
	MustRegister(Products)
}
