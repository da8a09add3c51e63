package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/tradedvm/internal/domain"
)

// listQuery accumulates a SELECT with positional arguments.
type listQuery struct {
	sql  strings.Builder
	args []any
}

func newListQuery(base string) *listQuery {
	q := &listQuery{}
	q.sql.WriteString(base)
	q.sql.WriteString(" WHERE 1=1")
	return q
}

// and appends "AND col op $n".
func (q *listQuery) and(col, op string, v any) {
	q.args = append(q.args, v)
	fmt.Fprintf(&q.sql, " AND %s %s $%d", col, op, len(q.args))
}

// window applies the Since/Until bounds of opts to the time column col.
func (q *listQuery) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.and(col, ">=", *opts.Since)
	}
	if opts.Until != nil {
		q.and(col, "<=", *opts.Until)
	}
}

// page appends ORDER BY, LIMIT and OFFSET.
func (q *listQuery) page(orderBy string, opts domain.ListOpts) {
	q.sql.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		fmt.Fprintf(&q.sql, " LIMIT $%d", len(q.args))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		fmt.Fprintf(&q.sql, " OFFSET $%d", len(q.args))
	}
}

func (q *listQuery) String() string { return q.sql.String() }
