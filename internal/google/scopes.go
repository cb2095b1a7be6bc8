package google

// DefaultOAuthScopes are the Google OAuth scopes inboxreply requests.
//
// The scopes provide access to:
//   - Gmail: read and label changes (mark read), send, signature settings
//   - Contacts: read-only lookup of recipients by name
var DefaultOAuthScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.settings.basic",
	"https://www.googleapis.com/auth/contacts.readonly",
	"https://www.googleapis.com/auth/contacts.other.readonly",
}
