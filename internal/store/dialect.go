package store

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported backends.
type Dialect struct {
	// Name is the dialect identifier and the migrations subdirectory.
	Name string

	// Driver is the database/sql driver name.
	Driver string

	// GooseDialect is passed to goose.SetDialect.
	GooseDialect string

	// MaxParams is the bound-parameter limit of a single statement.
	MaxParams int

	// Numbered selects $n placeholders instead of ?.
	Numbered bool

	// Truncate reports whether TRUNCATE ... RESTART IDENTITY is available.
	Truncate bool

	// ILike reports whether the backend has a case-insensitive LIKE operator.
	ILike bool

	// Copy reports whether the backend offers a native bulk copy path.
	Copy bool

	// SnapshotIsolation is the isolation level of ReadSnapshot
	// transactions. SQLite read transactions already see a single WAL
	// snapshot, so it stays at the default there.
	SnapshotIsolation sql.IsolationLevel

	// SnapshotReadOnly marks ReadSnapshot transactions read-only.
	SnapshotReadOnly bool
}

var (
	SQLite = Dialect{
		Name:         "sqlite",
		Driver:       "sqlite",
		GooseDialect: "sqlite",
		MaxParams:    32766,
	}

	Postgres = Dialect{
		Name:         "postgres",
		Driver:       "pgx",
		GooseDialect: "postgres",
		MaxParams:    65535,
		Numbered:     true,
		Truncate:     true,
		ILike:        true,
		Copy:         true,

		SnapshotIsolation: sql.LevelRepeatableRead,
		SnapshotReadOnly:  true,
	}
)

// DialectFor returns the dialect registered under name.
// "sqlite3" and "pgx" are accepted as aliases.
func DialectFor(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, true
	case "postgres", "postgresql", "pgx":
		return Postgres, true
	default:
		return Dialect{}, false
	}
}

// Placeholder returns the n-th (1-based) bind placeholder.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// snapshotOptions returns the options of a ReadSnapshot transaction.
func (d Dialect) snapshotOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: d.SnapshotIsolation, ReadOnly: d.SnapshotReadOnly}
}

// args tracks bind arguments while a statement is being built.
type args struct {
	d    Dialect
	vals []any
}

// add appends v and returns its placeholder.
func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns a search term into a LIKE pattern matching it
// anywhere, with wildcards in the term taken literally.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// containsFold renders a case-insensitive substring match of column.
func (d Dialect) containsFold(column string, a *args, term string) string {
	if d.ILike {
		return column + " ILIKE " + a.add(containsPattern(term)) + ` ESCAPE '\'`
	}
	return "LOWER(" + column + ") LIKE " + a.add(strings.ToLower(containsPattern(term))) + ` ESCAPE '\'`
}

// equalFold renders a case-insensitive equality match of column.
func (d Dialect) equalFold(column string, a *args, value string) string {
	return "LOWER(" + column + ") = " + a.add(strings.ToLower(value))
}
