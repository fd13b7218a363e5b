// Package cli formats command output for yomu.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --format flag value. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (want text or json)", s)
}

const rule = "─────────────────────────────────────────────────────────\n"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatQueryResult writes result to w in the given format.
func FormatQueryResult(w io.Writer, result *models.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "\nFound %d results in %s in %dms\n", len(result.Hits), result.Collection, result.QueryTime)
	if result.Degraded {
		fmt.Fprintln(w, "(partial: one retriever was unavailable)")
	}
	fmt.Fprintln(w)
	for i, h := range result.Hits {
		fmt.Fprint(w, rule)
		fmt.Fprintf(w, "%d. [%s] page %d | score %.4f\n", i+1, h.Kind, h.Page, h.Score)
		text := h.Snippet
		if text == "" {
			text = utils.Truncate(h.Content, 300)
		}
		fmt.Fprintf(w, "\n%s\n\n", text)
	}
	return nil
}

// FormatChat writes an answer and its sources.
func FormatChat(w io.Writer, data *models.ChatData, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, data)
	}
	fmt.Fprintf(w, "\n%s\n\n", data.Answer)
	if len(data.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range data.Sources {
			fmt.Fprintf(w, "  - %s, page %s\n", s.Source, s.Page)
		}
	}
	fmt.Fprintf(w, "Session: %s\n", data.SessionID)
	return nil
}

// FormatIngestResults writes one line per ingested document.
func FormatIngestResults(w io.Writer, results []*models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []*models.IngestResult{}
		}
		return writeJSON(w, results)
	}
	for _, r := range results {
		fmt.Fprintf(w, "%-14s %-30s %d units  %s\n", r.Status, r.Identity, r.UnitCount, r.Filename)
	}
	return nil
}

// FormatDocuments writes the document ledger.
func FormatDocuments(w io.Writer, docs []*models.DocumentRecord, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.DocumentRecord{}
		}
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents indexed.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%-30s %-14s %6d units  %s  %s\n",
			d.Key, d.Status, d.UnitCount, d.CreatedAt.Format("2006-01-02 15:04"), d.Filename)
	}
	return nil
}
