// Package google provides OAuth2 authorization and token storage for the
// Google APIs inboxreply uses.
//
// Tokens are stored per account as JSON files under the user cache directory
// (google-<account>.token). Token sources returned by Auth refresh expired
// access tokens and write the refreshed token back, so a long-running daemon
// and short CLI invocations share one token file.
package google
