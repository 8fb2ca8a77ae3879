// Package catalog provides the vehicle-to-battery fitment table used to
// answer price enquiries and to ground AI-generated replies. The table is
// immutable after construction and safe for concurrent use.
//
// Matching is deliberately simple: the input is lowercased once and the first
// entry whose vehicle name is a substring of the input wins, in insertion
// order. Callers that add overlapping names (e.g. "vw golf 7" and "vw golf")
// must list the more specific entry first.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Entry maps a vehicle model name to the battery size code it fits.
// Vehicle names are stored lowercase.
type Entry struct {
	Vehicle     string `json:"vehicle"`
	BatteryCode string `json:"battery_code"`
}

// Table is an ordered, read-only fitment table.
type Table struct {
	entries []Entry
}

// New builds a Table from the given entries, preserving their order.
// Vehicle names are normalized to lowercase; blank entries are skipped.
func New(entries []Entry) *Table {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		v := strings.ToLower(strings.TrimSpace(e.Vehicle))
		c := strings.TrimSpace(e.BatteryCode)
		if v == "" || c == "" {
			continue
		}
		out = append(out, Entry{Vehicle: v, BatteryCode: c})
	}
	return &Table{entries: out}
}

// Lookup returns the battery code for the first entry whose vehicle name is
// contained in text (case-insensitive). The second return value reports
// whether any entry matched.
func (t *Table) Lookup(text string) (string, bool) {
	if t == nil || text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, e := range t.entries {
		if strings.Contains(lower, e.Vehicle) {
			return e.BatteryCode, true
		}
	}
	return "", false
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of the table rows in order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// PromptLines serializes the table for embedding in an AI prompt, one fitment
// per line, with vehicle names title-cased for readability.
func (t *Table) PromptLines() string {
	if t == nil || len(t.entries) == 0 {
		return ""
	}
	titler := cases.Title(language.English)
	var b strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(titler.String(e.Vehicle))
		b.WriteString(": battery size ")
		b.WriteString(e.BatteryCode)
	}
	return b.String()
}

// Default returns the standard fitment table for the store's stocked range.
// Order matters: more specific model names come before their prefixes so the
// first-match rule picks the right row.
func Default() *Table {
	return New([]Entry{
		{"vw polo vivo", "646"},
		{"vw polo", "628"},
		{"vw golf 7", "646"},
		{"vw golf", "638"},
		{"toyota hilux", "652"},
		{"toyota corolla", "630"},
		{"toyota etios", "630"},
		{"ford ranger", "668"},
		{"ford fiesta", "630"},
		{"nissan np200", "639"},
		{"nissan navara", "652"},
		{"bmw 3 series", "658"},
		{"mercedes c class", "657"},
		{"hyundai i20", "630"},
		{"isuzu kb", "652"},
		{"renault clio", "630"},
	})
}
