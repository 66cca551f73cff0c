// Package db embeds the discount rule schema migrations.
package db

import (
	"embed"
	"io/fs"
	"sort"
)

// Migrations holds the DDL files applied in lexical order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Migration is a named DDL script.
type Migration struct {
	Name string
	SQL  string
}

// List returns the embedded migrations ordered by file name.
func List() ([]Migration, error) {
	names, err := fs.Glob(Migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := Migrations.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	return out, nil
}
