package gmail

import (
	"context"
	"strings"

	"google.golang.org/api/people/v1"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

const contactReadMask = "names,emailAddresses"

// Contact represents a simplified contact entry
type Contact struct {
	ResourceName string
	DisplayName  string
	EmailAddress string
}

// SearchContacts searches personal contacts and "other contacts" (people the
// user has exchanged mail with). A failing source is logged and skipped, so
// partial results are returned rather than an error.
func (c *Client) SearchContacts(ctx context.Context, query string, pageSize int) ([]*Contact, error) {
	if pageSize <= 0 {
		pageSize = 10
	}

	var all []*Contact
	seen := make(map[string]bool)
	add := func(results []*people.SearchResult) {
		for _, r := range results {
			contact := extractContact(r.Person)
			if contact == nil || contact.EmailAddress == "" {
				continue
			}
			key := strings.ToLower(contact.EmailAddress)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, contact)
		}
	}

	err := c.observe(ctx, instrumentation.ServicePeople, instrumentation.OperationSearch, func(ctx context.Context) error {
		resp, err := c.peopleSvc.People.SearchContacts().
			Query(query).
			ReadMask(contactReadMask).
			PageSize(int64(pageSize)).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		add(resp.Results)
		return nil
	})
	if err != nil {
		c.logger.Warn("personal contact search failed", logging.Err(err))
	}

	err = c.observe(ctx, instrumentation.ServicePeople, instrumentation.OperationSearch, func(ctx context.Context) error {
		resp, err := c.peopleSvc.OtherContacts.Search().
			Query(query).
			ReadMask(contactReadMask).
			PageSize(int64(pageSize)).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		add(resp.Results)
		return nil
	})
	if err != nil {
		c.logger.Warn("other contact search failed", logging.Err(err))
	}

	if len(all) > pageSize {
		all = all[:pageSize]
	}
	return all, nil
}

// extractContact extracts contact information from a Person object
func extractContact(person *people.Person) *Contact {
	if person == nil {
		return nil
	}

	contact := &Contact{
		ResourceName: person.ResourceName,
	}
	if len(person.Names) > 0 {
		contact.DisplayName = person.Names[0].DisplayName
	}
	if len(person.EmailAddresses) > 0 {
		contact.EmailAddress = person.EmailAddresses[0].Value
	}

	if contact.DisplayName == "" && contact.EmailAddress == "" {
		return nil
	}
	return contact
}
