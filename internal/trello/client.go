// Package trello is a small client for the Trello REST API covering the card
// checklist and comment operations the sync engine needs.
//
// Credentials are sent in the Authorization header rather than the query
// string so request URLs can be logged and wrapped in errors safely.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Trello API root.
const DefaultBaseURL = "https://api.trello.com/1"

// maxErrorBody caps how much of an error response is kept in APIError.Message.
const maxErrorBody = 512

// Client talks to the Trello API with an API key and token.
type Client struct {
	baseURL string
	key     string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a client. The default per-request timeout is 30 seconds.
func NewClient(key, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		key:     key,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateChecklist adds a checklist named title to the card and returns its ID.
func (c *Client) CreateChecklist(ctx context.Context, cardID, title string) (string, error) {
	params := url.Values{}
	params.Set("idCard", cardID)
	params.Set("name", title)
	params.Set("pos", "bottom")

	var cl Checklist
	if err := c.do(ctx, http.MethodPost, "/checklists", params, &cl); err != nil {
		return "", err
	}
	return cl.ID, nil
}

// DeleteChecklist removes a checklist and any items left in it.
func (c *Client) DeleteChecklist(ctx context.Context, checklistID string) error {
	return c.do(ctx, http.MethodDelete, "/checklists/"+url.PathEscape(checklistID), nil, nil)
}

// ListChecklists returns the card's checklists including their items.
func (c *Client) ListChecklists(ctx context.Context, cardID string) ([]Checklist, error) {
	params := url.Values{}
	params.Set("checkItems", "all")

	var lists []Checklist
	if err := c.do(ctx, http.MethodGet, "/cards/"+url.PathEscape(cardID)+"/checklists", params, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// CreateItem appends an item to a checklist and returns its ID.
func (c *Client) CreateItem(ctx context.Context, checklistID, text string, checked bool) (string, error) {
	params := url.Values{}
	params.Set("name", text)
	params.Set("checked", strconv.FormatBool(checked))
	params.Set("pos", "bottom")

	var item CheckItem
	if err := c.do(ctx, http.MethodPost, "/checklists/"+url.PathEscape(checklistID)+"/checkItems", params, &item); err != nil {
		return "", err
	}
	return item.ID, nil
}

// UpdateItemChecked sets an item's complete/incomplete state.
func (c *Client) UpdateItemChecked(ctx context.Context, cardID, itemID string, checked bool) error {
	params := url.Values{}
	params.Set("state", stateFor(checked))

	path := "/cards/" + url.PathEscape(cardID) + "/checkItem/" + url.PathEscape(itemID)
	return c.do(ctx, http.MethodPut, path, params, nil)
}

// DeleteItem removes a checklist item from the card.
func (c *Client) DeleteItem(ctx context.Context, cardID, itemID string) error {
	path := "/cards/" + url.PathEscape(cardID) + "/checkItem/" + url.PathEscape(itemID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateComment posts a comment on the card and returns the action ID.
func (c *Client) CreateComment(ctx context.Context, cardID, text string) (string, error) {
	params := url.Values{}
	params.Set("text", text)

	var action Comment
	if err := c.do(ctx, http.MethodPost, "/cards/"+url.PathEscape(cardID)+"/actions/comments", params, &action); err != nil {
		return "", err
	}
	return action.ID, nil
}

// UpdateComment replaces the text of an existing comment. The card ID is not
// needed by the API; it is accepted so all card operations share a shape.
func (c *Client) UpdateComment(ctx context.Context, cardID, commentID, text string) error {
	params := url.Values{}
	params.Set("text", text)
	return c.do(ctx, http.MethodPut, "/actions/"+url.PathEscape(commentID), params, nil)
}

// ListComments returns the card's comments, newest first.
func (c *Client) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	params := url.Values{}
	params.Set("filter", "commentCard")
	params.Set("limit", "1000")

	var comments []Comment
	if err := c.do(ctx, http.MethodGet, "/cards/"+url.PathEscape(cardID)+"/actions", params, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// do performs one request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf(`OAuth oauth_consumer_key="%s", oauth_token="%s"`, c.key, c.token))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &APIError{Method: method, Path: path, Err: ErrUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Err:        errorForStatus(resp.StatusCode),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
