package gmail

import (
	"context"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/google"
)

// maxPageSize is the largest page the Gmail API serves for a message listing.
const maxPageSize = 500

// Client wraps the Gmail Users service for read-only mailbox access
type Client struct {
	svc     *gmail.UsersService
	account string // The account this client is associated with
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// HasTokenForAccount checks if a valid OAuth token exists for the specified account
func HasTokenForAccount(account string) bool {
	return google.HasTokenForAccount(account)
}

// HasToken checks if a valid OAuth token exists for the default account
func HasToken() bool {
	return google.HasToken()
}

// NewClientForAccount creates a new Gmail client with OAuth2 authentication for a specific account
func NewClientForAccount(ctx context.Context, account string) (*Client, error) {
	client, err := google.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found for account %s: %w", account, err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		account: account,
	}, nil
}

// NewClient creates a new Gmail client with OAuth2 authentication for the default account
func NewClient(ctx context.Context) (*Client, error) {
	return NewClientForAccount(ctx, google.DefaultAccount)
}

// MessagePage is a single page of message IDs from a mailbox listing
type MessagePage struct {
	IDs            []string
	NextPageToken  string
	ResultEstimate int64
}

// ListPage fetches one page of message IDs matching the query. An empty
// pageToken starts from the newest messages; the returned NextPageToken is
// empty on the last page.
func (c *Client) ListPage(ctx context.Context, query, pageToken string, pageSize int64) (*MessagePage, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	req := c.svc.Messages.List("me").MaxResults(pageSize).Context(ctx)
	if query != "" {
		req.Q(query)
	}
	if pageToken != "" {
		req.PageToken(pageToken)
	}

	res, err := req.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &MessagePage{
		NextPageToken:  res.NextPageToken,
		ResultEstimate: res.ResultSizeEstimate,
	}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMessage retrieves a full Gmail message and converts it into an archive record
func (c *Client) GetMessage(ctx context.Context, id string) (*archive.Message, error) {
	msg, err := c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return parseMessage(msg), nil
}

// GetProfile returns the profile of the authenticated mailbox
func (c *Client) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}
