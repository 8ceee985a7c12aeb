// Package ledger decodes ledger files into engine entries.
//
// A ledger line holds four whitespace separated tokens:
//
//	<from> <to> <amount> <mode>
//
// where mode is one of D (deposit), W (withdraw), T (transfer) or
// C (check balance). The to field is only used by transfers. Ledger ids are
// not part of the file; they are assigned by a Sequencer in arrival order.
package ledger
