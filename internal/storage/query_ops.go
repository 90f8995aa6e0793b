package storage

import (
	"strings"
	"unicode"

	"github.com/dshills/lorekeeper/pkg/types"
)

// applyItemFilters adds WHERE clause equality filters for detail item queries
func applyItemFilters(query string, args []interface{}, q ItemQuery) (string, []interface{}) {
	if q.Category != "" {
		query += " AND d.category = ?"
		args = append(args, string(q.Category))
	}

	if len(q.IDs) > 0 {
		query += " AND d.id IN (" + placeholders(len(q.IDs)) + ")"
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}

	return query, args
}

// buildOrderClause orders by the requested column with id as a stable tiebreak
func buildOrderClause(q ItemQuery) string {
	column := "d." + OrderColumn(q.OrderBy)
	if q.OrderBy == types.SortName {
		column += " COLLATE NOCASE"
	}

	direction := " ASC"
	if q.Descending || q.OrderBy == types.SortRelevance {
		direction = " DESC"
	}
	return " ORDER BY " + column + direction + ", d.id ASC"
}

// buildFTSMatch converts free text into an FTS5 MATCH expression.
// Every token becomes a quoted prefix term; terms are implicitly ANDed,
// so FTS5 operators and special characters in user input are inert.
func buildFTSMatch(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = `"` + strings.ToLower(tok) + `"*`
	}
	return strings.Join(terms, " ")
}

// escapeLike escapes LIKE wildcards so user input matches literally
func escapeLike(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`%`, `\%`,
		`_`, `\_`,
	)
	return replacer.Replace(s)
}

// placeholders returns n comma-separated bind placeholders
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
