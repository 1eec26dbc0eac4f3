package postgres

import (
	"fmt"
	"strings"
	"time"
)

// Dialect supplies the SQL fragments that differ between engines. Only
// the PostgreSQL dialect is supported by the core engine: it depends on
// advisory locks and FOR UPDATE SKIP LOCKED. The MySQL and SQLite
// dialects exist for plugin-owned auxiliary tables.
type Dialect struct {
	Name                 string
	NowFunc              string
	GenerateUUIDFunc     string
	ForUpdateClause      string
	ForUpdateNowait      string
	ForUpdateSkipLocked  string
	OnConflictDoNothing  string
	SupportsAdvisoryLock bool
}

var PostgresDialect = Dialect{
	Name:                 "postgres",
	NowFunc:              "NOW()",
	GenerateUUIDFunc:     "gen_random_uuid()",
	ForUpdateClause:      "FOR UPDATE",
	ForUpdateNowait:      "FOR UPDATE NOWAIT",
	ForUpdateSkipLocked:  "FOR UPDATE SKIP LOCKED",
	OnConflictDoNothing:  "ON CONFLICT DO NOTHING",
	SupportsAdvisoryLock: true,
}

var MySQLDialect = Dialect{
	Name:                "mysql",
	NowFunc:             "NOW(3)",
	GenerateUUIDFunc:    "UUID()",
	ForUpdateClause:     "FOR UPDATE",
	ForUpdateNowait:     "FOR UPDATE NOWAIT",
	ForUpdateSkipLocked: "FOR UPDATE SKIP LOCKED",
	OnConflictDoNothing: "ON DUPLICATE KEY UPDATE id = id",
}

var SQLiteDialect = Dialect{
	Name:                "sqlite",
	NowFunc:             "CURRENT_TIMESTAMP",
	GenerateUUIDFunc:    "",
	OnConflictDoNothing: "ON CONFLICT DO NOTHING",
}

// Returning renders a RETURNING clause for the given columns.
func (d Dialect) Returning(cols ...string) string {
	if len(cols) == 0 {
		return ""
	}
	return "RETURNING " + strings.Join(cols, ", ")
}

// Interval renders a literal interval expression for the duration.
func (d Dialect) Interval(dur time.Duration) string {
	return fmt.Sprintf("INTERVAL '%d milliseconds'", dur.Milliseconds())
}

// CountAsInt wraps an expression so drivers scan it as a 64-bit integer.
func (d Dialect) CountAsInt(expr string) string {
	return fmt.Sprintf("CAST(%s AS BIGINT)", expr)
}

// Placeholder renders the n-th (1-based) bind placeholder.
func (d Dialect) Placeholder(n int) string {
	if d.Name == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
