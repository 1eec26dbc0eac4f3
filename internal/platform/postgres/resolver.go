package postgres

import (
	"regexp"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

// DefaultSchema is the schema that holds all engine tables unless the
// embedding application overrides it.
const DefaultSchema = "summa"

var schemaNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Resolver prefixes table names with the configured schema. The
// "public" schema is rendered without a prefix. Every piece of SQL in
// the engine goes through it, so renaming the schema is a config change.
type Resolver struct {
	schema string
}

func NewResolver(schema string) (*Resolver, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if !schemaNameRe.MatchString(schema) {
		return nil, errs.Newf(errs.CodeInvalidArgument, "postgres: invalid schema name %q", schema)
	}
	return &Resolver{schema: schema}, nil
}

func (r *Resolver) Schema() string { return r.schema }

// Table returns the schema-qualified name for an engine table.
func (r *Resolver) Table(name string) string {
	if r.schema == "public" {
		return name
	}
	return r.schema + "." + name
}
