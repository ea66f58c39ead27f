package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/jackc/pgx/v5"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(collection datastore.Collection, fields map[string]any) (string, []any) {
	keys := sortedKeys(fields)
	cols := make([]string, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		cols = append(cols, ident(k))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, fields[k])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ident(string(collection)), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args
}

func buildUpdate(collection datastore.Collection, id string, patch map[string]any) (string, []any) {
	keys := sortedKeys(patch)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(k), i+1))
		args = append(args, patch[k])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id::text = $%d",
		ident(string(collection)), strings.Join(sets, ", "), len(args))
	return query, args
}

// buildWhere compares on text so uuid and text keys share one code path and
// malformed ids simply match nothing.
func buildWhere(filter datastore.Filter, args []any) (string, []any) {
	clauses := make([]string, 0)
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		clauses = append(clauses, fmt.Sprintf("id::text = ANY($%d)", len(args)))
	}
	eqKeys := make([]string, 0, len(filter.Equals))
	for k := range filter.Equals {
		eqKeys = append(eqKeys, k)
	}
	sort.Strings(eqKeys)
	for _, k := range eqKeys {
		args = append(args, filter.Equals[k])
		clauses = append(clauses, fmt.Sprintf("%s::text = $%d", ident(k), len(args)))
	}
	for _, k := range filter.Empty {
		clauses = append(clauses, fmt.Sprintf("COALESCE(%s::text, '') = ''", ident(k)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildSelect(collection datastore.Collection, filter datastore.Filter) (string, []any) {
	where, args := buildWhere(filter, nil)
	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY created_at ASC, id ASC", ident(string(collection)), where)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return query, args
}

func buildCount(collection datastore.Collection, filter datastore.Filter) (string, []any) {
	where, args := buildWhere(filter, nil)
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", ident(string(collection)), where), args
}
