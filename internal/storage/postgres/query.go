package postgres

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

const detailItemColumns = `
	id, campaign_id, slug, name, category, description, metadata,
	source_session_id, ai_confidence, is_ai_generated, created_by,
	created_at, updated_at`

// queryBuilder accumulates a statement with numbered placeholders
type queryBuilder struct {
	sb   strings.Builder
	args []any
}

func (b *queryBuilder) write(s string) {
	b.sb.WriteString(s)
}

// bind appends an argument and returns its placeholder
func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// buildItemQuery renders an ItemQuery into SQL. ok is false when a full-text
// query has no searchable tokens and cannot match anything.
func buildItemQuery(q storage.ItemQuery) (sql string, args []any, ok bool) {
	b := &queryBuilder{}
	b.write(`SELECT ` + detailItemColumns + ` FROM detail_items WHERE campaign_id = ` + b.bind(q.CampaignID))

	if q.Category != "" {
		b.write(" AND category = " + b.bind(string(q.Category)))
	}
	if len(q.IDs) > 0 {
		b.write(" AND id = ANY(" + b.bind(q.IDs) + ")")
	}

	switch q.Match {
	case storage.MatchSubstring:
		p := b.bind("%" + escapeLike(strings.TrimSpace(q.Text)) + "%")
		b.write(" AND (name ILIKE " + p + " OR COALESCE(description, '') ILIKE " + p + ")")
	case storage.MatchFullText:
		tsq := buildTSQuery(q.Text)
		if tsq == "" {
			return "", nil, false
		}
		b.write(" AND to_tsvector('simple', name || ' ' || COALESCE(description, '')) @@ to_tsquery('simple', " + b.bind(tsq) + ")")
	}

	column := storage.OrderColumn(q.OrderBy)
	if q.OrderBy == types.SortName {
		column = "lower(name)"
	}
	direction := " ASC"
	if q.Descending || q.OrderBy == types.SortRelevance {
		direction = " DESC"
	}
	b.write(" ORDER BY " + column + direction + ", id ASC")

	if q.Limit > 0 {
		b.write(" LIMIT " + b.bind(q.Limit))
	}
	return b.sb.String(), b.args, true
}

// buildTSQuery converts free text into an AND of prefix lexemes
func buildTSQuery(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, tok := range tokens {
		tokens[i] = strings.ToLower(tok) + ":*"
	}
	return strings.Join(tokens, " & ")
}

// escapeLike escapes ILIKE wildcards; backslash is the default escape
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
