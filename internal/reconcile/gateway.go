package reconcile

import "context"

// Gateway is the set of remote card operations the reconciler issues.
//
// Create methods return the remote ID of the new object. Implementations
// must return an error rather than an empty ID.
type Gateway interface {
	CreateChecklist(ctx context.Context, cardID, title string) (string, error)
	DeleteChecklist(ctx context.Context, checklistID string) error
	CreateItem(ctx context.Context, checklistID, text string, checked bool) (string, error)
	UpdateItemChecked(ctx context.Context, cardID, itemID string, checked bool) error
	DeleteItem(ctx context.Context, cardID, itemID string) error
	CreateComment(ctx context.Context, cardID, text string) (string, error)
	UpdateComment(ctx context.Context, cardID, commentID, text string) error
}
