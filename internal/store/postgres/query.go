package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// buildListQuery appends status, time range, ordering and pagination clauses
// for opts to base. timeCol names the column Since/Until bound and the
// result is ordered by it, newest first.
func buildListQuery(base, timeCol string, opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Status != "" {
		where = append(where, "status = "+next(string(opts.Status)))
	}
	if opts.Since != nil {
		where = append(where, timeCol+" >= "+next(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, timeCol+" < "+next(*opts.Until))
	}

	var b strings.Builder
	b.WriteString(base)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s DESC", timeCol)
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + next(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + next(opts.Offset))
	}
	return b.String(), args
}
