package trellotest

import (
	"context"
	"errors"
	"testing"

	"github.com/mschirtzinger/logsync/internal/trello"
)

func TestFakeChecklistLifecycle(t *testing.T) {
	ctx := context.Background()
	f := New()

	clID, err := f.CreateChecklist(ctx, "card", "Setup")
	if err != nil {
		t.Fatalf("CreateChecklist failed: %v", err)
	}
	itID, err := f.CreateItem(ctx, clID, "Install tools", false)
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if err := f.UpdateItemChecked(ctx, "card", itID, true); err != nil {
		t.Fatalf("UpdateItemChecked failed: %v", err)
	}

	lists, _ := f.ListChecklists(ctx, "card")
	if len(lists) != 1 || len(lists[0].CheckItems) != 1 {
		t.Fatalf("unexpected checklists: %+v", lists)
	}
	if !lists[0].CheckItems[0].Checked() {
		t.Error("item should be checked")
	}

	if err := f.DeleteItem(ctx, "card", itID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if err := f.DeleteChecklist(ctx, clID); err != nil {
		t.Fatalf("DeleteChecklist failed: %v", err)
	}
	if lists, _ := f.ListChecklists(ctx, "card"); len(lists) != 0 {
		t.Errorf("expected no checklists, got %d", len(lists))
	}
	if got := len(f.Calls()); got != 5 {
		t.Errorf("expected 5 calls, got %d", got)
	}
}

func TestFakeMissingObjectsAreNotFound(t *testing.T) {
	ctx := context.Background()
	f := New()

	if err := f.DeleteChecklist(ctx, "nope"); !errors.Is(err, trello.ErrNotFound) {
		t.Errorf("DeleteChecklist: expected ErrNotFound, got %v", err)
	}
	if err := f.UpdateComment(ctx, "card", "nope", "x"); !errors.Is(err, trello.ErrNotFound) {
		t.Errorf("UpdateComment: expected ErrNotFound, got %v", err)
	}
	if _, err := f.CreateItem(ctx, "nope", "x", false); !errors.Is(err, trello.ErrNotFound) {
		t.Errorf("CreateItem: expected ErrNotFound, got %v", err)
	}
}

func TestFakeFailOn(t *testing.T) {
	ctx := context.Background()
	f := New()
	f.FailOn = func(c Call) error {
		if c.Op == OpCreateComment {
			return trello.ErrRateLimited
		}
		return nil
	}

	if _, err := f.CreateComment(ctx, "card", "hello"); !errors.Is(err, trello.ErrRateLimited) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if comments, _ := f.ListComments(ctx, "card"); len(comments) != 0 {
		t.Errorf("failed call must not change the card, got %d comments", len(comments))
	}
	if len(f.Calls()) != 0 {
		t.Errorf("failed call must not be recorded")
	}
}

func TestFakeCommentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := New()

	first, _ := f.CreateComment(ctx, "card", "one")
	second, _ := f.CreateComment(ctx, "card", "two")
	if _, err := f.CreateComment(ctx, "other", "elsewhere"); err != nil {
		t.Fatal(err)
	}

	comments, _ := f.ListComments(ctx, "card")
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].ID != second || comments[1].ID != first {
		t.Errorf("unexpected order: %s, %s", comments[0].ID, comments[1].ID)
	}

	if err := f.UpdateComment(ctx, "card", first, "uno"); err != nil {
		t.Fatal(err)
	}
	if text, _ := f.Comment(first); text != "uno" {
		t.Errorf("expected updated text, got %q", text)
	}
}

func TestFakeDrop(t *testing.T) {
	ctx := context.Background()
	f := New()
	clID, _ := f.CreateChecklist(ctx, "card", "A")
	itID, _ := f.CreateItem(ctx, clID, "x", false)

	if !f.Drop(itID) {
		t.Fatal("Drop(item) returned false")
	}
	if _, ok := f.Item(itID); ok {
		t.Error("item still present after Drop")
	}
	if f.Drop("missing") {
		t.Error("Drop(missing) returned true")
	}
}
