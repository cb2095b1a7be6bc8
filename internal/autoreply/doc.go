// Package autoreply implements the auto-reply rule engine.
//
// An Engine polls a Mail collaborator for unread inbox messages, drops
// senders that look automated or are the account itself, picks the first
// rule whose time window and sender scope match, and answers with either the
// rule's message or a reply written by a Generator. Answered threads are
// remembered in memory so a thread is replied to at most once per process.
//
// Rules are ordered: the first active, matching rule wins. A rule with no
// senders matches everyone. Windows are wall-clock "HH:MM" ranges, inclusive
// at both ends, and wrap past midnight when the start is after the end.
//
// The engine is also driven by structured commands (Intent), usually produced
// from free text by an LLM-backed CommandParser:
//
//	reply, err := engine.HandleCommand(ctx, assistant, "reply to john@x.com after 6pm")
package autoreply
