// Package gmail provides a read-only client for the Gmail API.
//
// The client lists mailbox pages and fetches complete messages, converting
// them into archive records. Conversion handles the messy parts of real
// mail: Date headers that deviate from RFC 5322, base64url bodies with and
// without padding, and MIME trees where the text/plain part is nested a few
// levels deep.
//
// Authentication uses the per-account Google OAuth tokens managed by the
// google package.
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := gmail.NewClientForAccount(ctx, "default")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	page, err := client.ListPage(ctx, "from:billing@example.com", "", 100)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, id := range page.IDs {
//	    msg, err := client.GetMessage(ctx, id)
//	    if err != nil {
//	        log.Printf("skipping %s: %v", id, err)
//	        continue
//	    }
//	    fmt.Println(msg.Subject)
//	}
package gmail
