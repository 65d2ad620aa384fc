package sheets

import (
	"context"

	"eventfin/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportWriter appends a computed event report to a spreadsheet and
	// returns a reference to the written range.
	ReportWriter interface {
		AppendReport(ctx context.Context, r core.EventReport) (rowRef string, err error)
	}
)
