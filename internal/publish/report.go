package publish

import (
	"fmt"
	"strings"

	"github.com/user/playrelay/internal/types"
)

// Attempt is the outcome of a single outbound publish.
type Attempt struct {
	Destination types.DestinationID
	Name        string
	Style       ControlStyle
	Kind        Kind
	Err         error
}

// OK reports whether the publish succeeded.
func (a Attempt) OK() bool { return a.Err == nil }

// Report aggregates a multi-destination publish.
type Report struct {
	Total     int
	Succeeded int
	Failed    []string
}

// Processed is the number of destinations attempted so far.
func (r Report) Processed() int {
	return r.Succeeded + len(r.Failed)
}

func (r *Report) add(a Attempt) {
	if a.OK() {
		r.Succeeded++
		return
	}
	r.Failed = append(r.Failed, a.Name)
}

// Summary renders the final report.
func (r Report) Summary() string {
	var b strings.Builder
	icon := "✅"
	if r.Succeeded < r.Total {
		icon = "⚠️"
	}
	if r.Succeeded == 0 && r.Total > 0 {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s Posted to %d/%d destinations.", icon, r.Succeeded, r.Total)
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed: %s", strings.Join(r.Failed, ", "))
	}
	return b.String()
}

// Progress renders an in-flight report.
func (r Report) Progress() string {
	return fmt.Sprintf("📤 Publishing to %d destinations... %d/%d done", r.Total, r.Processed(), r.Total)
}
