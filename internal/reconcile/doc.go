// Package reconcile computes and applies the operations that bring a card's
// checklists and comments in line with a parsed log document.
//
// Plan is pure: given a document and the previous sync state it returns the
// ordered operation list. A Reconciler executes that list against a Gateway,
// updating a copy of the state after each successful operation:
//
//	rec := reconcile.New(client, reconcile.DefaultConfig())
//	next, res := rec.Reconcile(ctx, cardID, doc, prev)
//
// A failed operation is logged and skipped. Its state entry is left as it
// was, so the same operation is planned again on the next run.
package reconcile
