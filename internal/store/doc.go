// Package store persists inboxreply's local state: contacts, preferences,
// auto-reply settings and a short history of sent mail.
//
// The state lives in one JSON file that is replaced atomically on every
// write. The previous version is kept next to it with a ".bak" suffix and
// used when the main file cannot be decoded.
package store
