// Package cmd implements the command-line interface for inboxreply.
//
// This package provides the following commands:
//   - run: Poll the inbox and answer unread mail according to the rules;
//     also sends scheduled emails and serves metrics and health endpoints
//   - auth: Authorize a Google account and store its OAuth token
//   - rules list|add|remove|export|import: Manage auto-reply rules
//   - enable, disable: Turn auto-replies on or off
//   - smart on|off: Allow or forbid LLM-generated replies
//   - ask: Manage rules in plain language through the LLM
//   - send, compose: Send an email now or later, optionally drafted by the LLM
//   - schedule list|cancel: Inspect and cancel scheduled emails
//   - contacts add|list|remove: Manage saved contacts
//   - status: Show the saved state
//   - version: Display version information
//
// All state changes go to the state file, so commands can be used while the
// daemon runs.
package cmd
