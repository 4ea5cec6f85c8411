package store

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// psql builds postgres statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type rowScanner interface {
	Scan(dest ...any) error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching value anywhere in the column.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

func paginate(b sq.SelectBuilder, offset, limit int) sq.SelectBuilder {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	return b.Offset(uint64(offset)).Limit(uint64(limit))
}
