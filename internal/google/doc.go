// Package google provides OAuth2 authentication and token management for Google APIs.
//
// Tokens are stored per account under the user cache directory, so multiple
// Gmail accounts can be exported side by side.
package google
