package destination

import (
	"strings"

	"github.com/user/playrelay/internal/types"
)

// Schedule binds a cron expression to a destination.
type Schedule struct {
	Destination types.DestinationID
	Expr        string
}

// ParseSchedules reads "id:cronExpr;id:cronExpr". Malformed entries are
// skipped; expressions are validated later by the scheduler.
func ParseSchedules(config string) []Schedule {
	var out []Schedule
	for _, entry := range strings.Split(config, ";") {
		id, expr, ok := strings.Cut(strings.TrimSpace(entry), ":")
		id, expr = strings.TrimSpace(id), strings.TrimSpace(expr)
		if !ok || id == "" || expr == "" {
			continue
		}
		out = append(out, Schedule{Destination: types.DestinationID(id), Expr: expr})
	}
	return out
}
