package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/couchcryptid/hydro-etl/internal/domain"
)

// TemplateTimeLayout is the timestamp format of time template rows.
const TemplateTimeLayout = "2006-01-02T15:04:05Z"

// YearWindow limits a template to an inclusive year range. Zero bounds are open.
type YearWindow struct {
	StartYear int
	EndYear   int
}

func (w YearWindow) contains(year int) bool {
	return (w.StartYear == 0 || year >= w.StartYear) && (w.EndYear == 0 || year <= w.EndYear)
}

// WriteTimeTemplate writes the decoded time axis of ds as CSV rows of
// "datetime,flow" with a zero flow, the empty frame downstream forecast
// tooling fills per river. It returns the number of rows written.
func WriteTimeTemplate(out io.Writer, ds domain.Dataset, timeVar string, window YearWindow) (int, error) {
	index, err := domain.LoadTimeIndex(ds, timeVar)
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{"datetime", "flow"}); err != nil {
		return 0, fmt.Errorf("write template header: %w", err)
	}
	rows := 0
	for _, ts := range index.Times() {
		if !window.contains(ts.Year()) {
			continue
		}
		if err := w.Write([]string{ts.UTC().Format(TemplateTimeLayout), "0"}); err != nil {
			return rows, fmt.Errorf("write template row: %w", err)
		}
		rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("flush template: %w", err)
	}
	return rows, nil
}
