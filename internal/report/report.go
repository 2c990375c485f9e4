package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/journal"
)

// Section is one category's slice of the daily report, already filtered to
// the target date.
type Section struct {
	Title   string
	Entries []journal.Entry
}

// Renderer turns the day's sections into a file artifact and returns its
// path. The artifact is ephemeral; it is handed to the notifier's document
// path and not otherwise persisted.
type Renderer interface {
	Render(date time.Time, sections []Section) (string, error)
}

// pageLines is the page capacity threshold: a page break is emitted once a
// page fills up.
const pageLines = 40

// TextRenderer writes a dated plain-text listing, paginated.
type TextRenderer struct {
	Dir string
}

func (r *TextRenderer) Render(date time.Time, sections []Section) (string, error) {
	day := date.Format("2006-01-02")
	var b strings.Builder
	lines := 0
	page := 1

	writeLine := func(s string) {
		if lines >= pageLines {
			page++
			fmt.Fprintf(&b, "\n----- page %d -----\n\n", page)
			lines = 0
		}
		b.WriteString(s)
		b.WriteByte('\n')
		lines++
	}

	writeLine(fmt.Sprintf("Event report for %s", day))
	writeLine("")

	for _, sec := range sections {
		if len(sec.Entries) == 0 {
			continue
		}
		writeLine(sec.Title + ":")
		for _, e := range sec.Entries {
			writeLine(fmt.Sprintf("  %s: %s", e.Time.UTC().Format(time.RFC3339), e.Summary))
		}
		writeLine("")
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.Dir, "report_"+day+".txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
