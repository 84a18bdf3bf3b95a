package storage

import (
	"fmt"
	"regexp"
	"time"
)

// Info: Separate file for Symbol Registration logic specific to Postgres

// SymbolMetadata defines the structure for symbol registration
type SymbolMetadata struct {
	Symbol    string
	Type      string // "classic" or "postgres_ref"
	RefSchema string
	RefTable  string
	RefField  string
}

var pgSymbolRegex = regexp.MustCompile(`^(\w+)\.(\w+)\.(\w+)$`)

// -----------------------------------------------------------------------------

// SplitSymbolRefs separates plain symbols from schema.table.field references.
func SplitSymbolRefs(raw []string) (classic []string, refs []SymbolMetadata) {
	for _, sym := range raw {
		if m := pgSymbolRegex.FindStringSubmatch(sym); len(m) == 4 {
			refs = append(refs, SymbolMetadata{
				Symbol:    sym,
				Type:      "postgres_ref",
				RefSchema: m[1],
				RefTable:  m[2],
				RefField:  m[3],
			})
			continue
		}
		classic = append(classic, sym)
	}
	return classic, refs
}

// -----------------------------------------------------------------------------

// ResolveSymbols expands table references into the symbols they hold,
// registers everything and returns the plain symbol list.
func (d *PostgresDB) ResolveSymbols(raw []string) ([]string, error) {
	classic, refs := SplitSymbolRefs(raw)

	registry := make([]SymbolMetadata, 0, len(raw))
	for _, s := range classic {
		registry = append(registry, SymbolMetadata{Symbol: s, Type: "classic"})
	}
	for _, ref := range refs {
		registry = append(registry, ref)

		loaded, err := d.GetSymbolsFromTable(ref.RefSchema, ref.RefTable, ref.RefField)
		if err != nil {
			return classic, fmt.Errorf("failed to load symbols from %s: %w", ref.Symbol, err)
		}
		for _, s := range loaded {
			classic = append(classic, s)
			registry = append(registry, SymbolMetadata{Symbol: s, Type: "classic"})
		}
	}

	if err := d.RegisterSymbols(registry); err != nil {
		return classic, fmt.Errorf("failed to register symbols: %w", err)
	}
	return classic, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RegisterSymbols(symbols []SymbolMetadata) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, type, ref_schema, ref_table, ref_field, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			type = EXCLUDED.type,
			ref_schema = EXCLUDED.ref_schema,
			ref_table = EXCLUDED.ref_table,
			ref_field = EXCLUDED.ref_field,
			updated_at = EXCLUDED.updated_at
	`, d.table("symbols"))

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range symbols {
		if _, err := stmt.Exec(s.Symbol, s.Type, s.RefSchema, s.RefTable, s.RefField, time.Now().UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetSymbolsFromTable(schema, table, field string) ([]string, error) {
	// Identifiers are \w+ from the regex and quoted here
	query := fmt.Sprintf(`SELECT DISTINCT "%s" FROM "%s"."%s"`, field, schema, table)

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s != "" {
			symbols = append(symbols, s)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return symbols, nil
}
