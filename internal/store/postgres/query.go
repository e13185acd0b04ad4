package postgres

import (
	"fmt"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// listQuery appends the time window, ordering and paging of opts to base.
// base must end in a WHERE clause; args are its existing placeholders.
func listQuery(base string, args []any, opts domain.ListOpts) (string, []any) {
	query := base
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		query += " AND created_at >= " + next(*opts.Since)
	}
	if opts.Until != nil {
		query += " AND created_at <= " + next(*opts.Until)
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + next(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + next(opts.Offset)
	}
	return query, args
}
