package ingest

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/procsight/procsight/pkg/types"
)

// Required columns for canonical event logs, checked after column-name
// normalization and alias resolution.
var requiredColumns = []string{"case_id", "activity", "timestamp"}

// columnAliases maps well-known XES-style column names onto the canonical
// schema. Applied after lowercasing/underscore normalization, before
// validation.
var columnAliases = map[string]string{
	"case:concept:name": "case_id",
	"concept:name":      "activity",
	"time:timestamp":    "timestamp",
	"org:resource":      "resource",
}

// Defaults for optional columns absent from the source table.
const (
	defaultResource  = "Unknown"
	defaultCost      = 0.0
	sentinelActivity = "Unknown Activity"
	sentinelCaseID   = "Unknown Case"
)

// timestampLayouts are tried in order when RFC3339 parsing fails. All values
// are interpreted as UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

// Normalizer maps arbitrary tabular input onto the canonical event schema.
type Normalizer struct{}

// NewNormalizer creates a schema normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize validates and transforms a table into canonical events plus a
// metrics summary. It returns a *SchemaValidationError when any required
// column is missing; all other rows-level problems are repaired in place
// (sentinels, defaults, nil timestamps) rather than failing the upload. A
// schema-valid table with no data rows normalizes to zero events with
// zero-valued metrics and a (null, null) date range.
func (n *Normalizer) Normalize(table *Table) ([]types.CanonicalEvent, types.StructuredMetrics, error) {
	var metrics types.StructuredMetrics

	index := map[string]int{}
	for i, col := range table.Columns {
		index[normalizeColumnName(col)] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, metrics, &SchemaValidationError{MissingColumns: missing}
	}

	hasResource := hasColumn(index, "resource")
	hasCost := hasColumn(index, "cost")

	events := make([]types.CanonicalEvent, 0, len(table.Rows))
	for rowNum, row := range table.Rows {
		if rowIsEmpty(row) {
			continue
		}

		cell := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		ev := types.CanonicalEvent{
			CaseID:      cell("case_id"),
			Activity:    cell("activity"),
			Resource:    cell("resource"),
			Location:    cell("location"),
			ProductType: cell("product_type"),
		}

		if ev.CaseID == "" {
			ev.CaseID = sentinelCaseID
		}
		if ev.Activity == "" {
			ev.Activity = sentinelActivity
		}
		if ev.Resource == "" {
			ev.Resource = defaultResource
		}

		if raw := cell("timestamp"); raw != "" {
			if ts, ok := parseTimestamp(raw); ok {
				ev.Timestamp = &ts
			} else {
				log.Printf("ingest: row %d: unparsable timestamp %q (stored as null)", rowNum+1, raw)
			}
		}

		ev.Cost = defaultCost
		if raw := cell("cost"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				ev.Cost = v
			}
		}

		events = append(events, ev)
	}

	metrics = computeMetrics(events, hasResource, hasCost)
	return events, metrics, nil
}

// normalizeColumnName lowercases a header and replaces spaces with
// underscores, then resolves known aliases onto the canonical names.
func normalizeColumnName(name string) string {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if canonical, ok := columnAliases[norm]; ok {
		return canonical
	}
	return norm
}

func hasColumn(index map[string]int, name string) bool {
	_, ok := index[name]
	return ok
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseTimestamp parses a timestamp string as UTC. RFC3339 is tried first,
// then the fixed fallback layouts.
func parseTimestamp(value string) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), true
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func computeMetrics(events []types.CanonicalEvent, hasResource, hasCost bool) types.StructuredMetrics {
	cases := map[string]bool{}
	activities := map[string]bool{}
	resources := map[string]bool{}
	var totalCost float64
	var minTS, maxTS *time.Time

	for i := range events {
		ev := &events[i]
		cases[ev.CaseID] = true
		activities[ev.Activity] = true
		resources[ev.Resource] = true
		totalCost += ev.Cost

		if ev.Timestamp != nil {
			if minTS == nil || ev.Timestamp.Before(*minTS) {
				minTS = ev.Timestamp
			}
			if maxTS == nil || ev.Timestamp.After(*maxTS) {
				maxTS = ev.Timestamp
			}
		}
	}

	m := types.StructuredMetrics{
		TotalEvents:      len(events),
		UniqueCases:      len(cases),
		UniqueActivities: len(activities),
	}

	if hasResource {
		n := len(resources)
		m.UniqueResources = &n
	}
	if hasCost {
		var avg float64
		if len(events) > 0 {
			avg = totalCost / float64(len(events))
		}
		m.TotalCost = &totalCost
		m.AverageCost = &avg
	}

	if minTS != nil {
		lo := minTS.Format(time.RFC3339)
		hi := maxTS.Format(time.RFC3339)
		m.DateRange = [2]*string{&lo, &hi}
	}

	return m
}
