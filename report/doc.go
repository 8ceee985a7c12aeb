// Package report renders run results: one console line per outcome, the
// final balance table, and Arrow files for offline analysis.
package report
