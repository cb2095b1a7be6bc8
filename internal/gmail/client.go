package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/k3a/html2text"
	"go.opentelemetry.io/otel/attribute"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/google"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

const (
	user = "me"

	// DefaultMaxUnread bounds how many unread messages one listing returns.
	DefaultMaxUnread = 100

	labelInbox  = "INBOX"
	labelUnread = "UNREAD"
	unreadQuery = "is:unread"
)

// Options configures a Client.
type Options struct {
	// Account is the configured account name, used for logs and metrics.
	Account string

	// MaxUnread bounds ListUnread. Defaults to DefaultMaxUnread.
	MaxUnread int64

	// AppendSignature adds the account's Gmail signature to outgoing mail.
	AppendSignature bool

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Client wraps the Gmail Users service and People service
type Client struct {
	svc       *gmail.UsersService
	peopleSvc *people.Service
	account   string
	maxUnread int64
	signature bool

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	sigMu     sync.Mutex
	sigLoaded bool
	sigHTML   string
}

var (
	_ autoreply.Mail          = (*Client)(nil)
	_ autoreply.ThreadReplier = (*Client)(nil)
)

// NewClientForAccount creates a Gmail client authenticated with the stored
// token of opts.Account.
func NewClientForAccount(ctx context.Context, auth *google.Auth, opts Options) (*Client, error) {
	if opts.Account == "" {
		opts.Account = google.DefaultAccount
	}
	httpClient, err := auth.HTTPClientForAccount(ctx, opts.Account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", google.GetAuthenticationErrorMessage(opts.Account), err)
	}
	return NewClient(ctx, opts, option.WithHTTPClient(httpClient))
}

// NewClient creates a client from explicit API options.
func NewClient(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	peopleSvc, err := people.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create People service: %w", err)
	}

	if opts.Account == "" {
		opts.Account = google.DefaultAccount
	}
	if opts.MaxUnread <= 0 {
		opts.MaxUnread = DefaultMaxUnread
	}
	if opts.Metrics == nil {
		opts.Metrics = &instrumentation.Metrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		svc:       svc.Users,
		peopleSvc: peopleSvc,
		account:   opts.Account,
		maxUnread: opts.MaxUnread,
		signature: opts.AppendSignature,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		logger:    logging.WithAccount(opts.Logger, opts.Account),
	}, nil
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// observe runs fn inside a Google API span and records its outcome.
func (c *Client) observe(ctx context.Context, service, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, service, operation,
		attribute.String(instrumentation.SpanAttrAccount, c.account))
	start := time.Now()

	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperationWithAccount(ctx, service, operation, status, c.account, time.Since(start))
	instrumentation.EndSpan(span, err)
	return err
}

// ListUnread returns unread inbox messages in listing order, following
// pagination up to the configured maximum.
func (c *Client) ListUnread(ctx context.Context) ([]autoreply.MessageRef, error) {
	var refs []autoreply.MessageRef

	err := c.observe(ctx, instrumentation.ServiceGmail, instrumentation.OperationList, func(ctx context.Context) error {
		pageToken := ""
		for {
			remaining := c.maxUnread - int64(len(refs))
			if remaining <= 0 {
				return nil
			}

			// Gmail API has a max page size of 500; 100 keeps responses small
			pageSize := min(remaining, 100)

			req := c.svc.Messages.List(user).
				LabelIds(labelInbox).
				Q(unreadQuery).
				MaxResults(pageSize).
				Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}

			res, err := req.Do()
			if err != nil {
				return fmt.Errorf("failed to list unread messages: %w", err)
			}

			for _, m := range res.Messages {
				refs = append(refs, autoreply.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
			}

			if res.NextPageToken == "" {
				return nil
			}
			pageToken = res.NextPageToken
		}
	})
	if err != nil {
		return nil, err
	}

	if int64(len(refs)) > c.maxUnread {
		refs = refs[:c.maxUnread]
	}
	return refs, nil
}

// GetMessage retrieves a full Gmail message
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(user, messageID).Format("full").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		return nil
	})
	return msg, err
}

// Fetch retrieves a message with sender, subject and readable body.
func (c *Client) Fetch(ctx context.Context, messageID string) (*autoreply.Message, error) {
	msg, err := c.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return toMessage(msg), nil
}

// MarkRead removes the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.observe(ctx, instrumentation.ServiceGmail, instrumentation.OperationModify, func(ctx context.Context) error {
		_, err := c.svc.Messages.Modify(user, messageID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{labelUnread},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to mark message %s as read: %w", messageID, err)
		}
		return nil
	})
}

// Send sends a plain-text auto-reply.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	_, err := c.SendEmail(ctx, &EmailMessage{
		To:      []string{to},
		Subject: subject,
		Body:    body,
		Kind:    instrumentation.SentKindAutoReply,
	})
	return err
}

// Reply answers original inside its Gmail thread. In-Reply-To and References
// point at the original so other mail clients thread it as well.
func (c *Client) Reply(ctx context.Context, original *autoreply.Message, to, subject, body string) error {
	_, err := c.SendEmail(ctx, &EmailMessage{
		To:         []string{to},
		Subject:    subject,
		Body:       body,
		ThreadID:   original.ThreadID,
		InReplyTo:  original.MessageID,
		References: replyReferences(original),
		Kind:       instrumentation.SentKindAutoReply,
	})
	return err
}

// SendEmail sends an email through Gmail API and returns the new message id.
func (c *Client) SendEmail(ctx context.Context, msg *EmailMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("at least one recipient is required")
	}
	if msg.Subject == "" {
		return "", errors.New("subject is required")
	}
	if msg.Body == "" {
		return "", errors.New("body is required")
	}
	kind := msg.Kind
	if kind == "" {
		kind = instrumentation.SentKindManual
	}

	record := instrumentation.NewSentMail(kind, strings.Join(msg.To, ", "), msg.Subject).
		WithAccount(c.account).
		WithThread(msg.ThreadID)

	var id string
	err := c.observe(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend, func(ctx context.Context) error {
		record.WithSpanContext(ctx)

		raw := buildRaw(msg, c.signatureFor(ctx, msg.IsHTML))
		sent, err := c.svc.Messages.Send(user, &gmail.Message{
			Raw:      raw,
			ThreadId: msg.ThreadID,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		id = sent.Id
		return nil
	})

	c.audit.LogSentMail(record.Complete(id, err))
	return id, err
}

// WithKind returns a sender whose mail is audited as kind.
func (c *Client) WithKind(kind string) *KindSender {
	return &KindSender{client: c, kind: kind}
}

// KindSender sends plain-text mail under a fixed audit kind.
type KindSender struct {
	client *Client
	kind   string
}

// Send sends a plain-text email.
func (s *KindSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &EmailMessage{
		To:      []string{to},
		Subject: subject,
		Body:    body,
		Kind:    s.kind,
	})
	return err
}

// GetSignature fetches the signature of the primary send-as address.
// The result is cached after the first successful fetch.
func (c *Client) GetSignature(ctx context.Context) (string, error) {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()

	if c.sigLoaded {
		return c.sigHTML, nil
	}

	var sendAs *gmail.SendAs
	err := c.observe(ctx, instrumentation.ServiceGmail, instrumentation.OperationSignature, func(ctx context.Context) error {
		var err error
		sendAs, err = c.svc.Settings.SendAs.Get(user, user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get signature: %w", err)
	}

	c.sigLoaded = true
	c.sigHTML = sendAs.Signature
	return c.sigHTML, nil
}

// signatureFor returns the signature to append, or "" when disabled or
// unavailable. Sending never fails because of the signature.
func (c *Client) signatureFor(ctx context.Context, isHTML bool) string {
	if !c.signature {
		return ""
	}
	sig, err := c.GetSignature(ctx)
	if err != nil {
		c.logger.Debug("sending without signature", logging.Err(err))
		return ""
	}
	if isHTML || sig == "" {
		return sig
	}
	return strings.TrimSpace(html2text.HTML2Text(sig))
}

// SelfAddress returns the authenticated user's email address.
func (c *Client) SelfAddress(ctx context.Context) (string, error) {
	var addr string
	err := c.observe(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet, func(ctx context.Context) error {
		profile, err := c.svc.GetProfile(user).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get profile: %w", err)
		}
		addr = profile.EmailAddress
		return nil
	})
	return addr, err
}
