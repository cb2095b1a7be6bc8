// Package schedule sends emails at a later time.
//
// Scheduled emails are stored in SQLite so they survive restarts. A cron
// entry checks for due emails (every 30 seconds by default) and hands them
// to a Sender. Failed sends are retried on the next check until the attempt
// limit is reached.
package schedule
