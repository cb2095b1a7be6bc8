// Package gmail adapts the Gmail and People APIs to the auto-reply engine.
//
// Client implements autoreply.Mail: it lists unread inbox messages, fetches
// them in full format (sender, subject, readable body, automated-mail
// detection), sends plain-text replies and removes the UNREAD label once a
// message has been answered. Every API call is traced and counted through the
// instrumentation package, and every outgoing email is written to the audit
// log.
//
// Example usage:
//
//	auth := google.NewAuth(google.Config{ClientID: id, ClientSecret: secret})
//	client, err := gmail.NewClientForAccount(ctx, auth, gmail.Options{Account: "work"})
//	if err != nil {
//	    return err
//	}
//
//	refs, err := client.ListUnread(ctx)
//
//	contacts, err := client.SearchContacts(ctx, "Bob", 5)
package gmail
