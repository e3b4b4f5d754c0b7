// Package crm stores business card contacts collected at the booth.
package crm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSource marks contacts captured from a scanned business card
const DefaultSource = "business_card_scan"

var (
	// ErrNotFound is returned when a contact id is unknown
	ErrNotFound = errors.New("contact not found")
	// ErrInvalidContact is wrapped by validation failures
	ErrInvalidContact = errors.New("invalid contact")
)

// Contact is one person in the CRM
type Contact struct {
	ContactID     string     `json:"contact_id"`
	Name          string     `json:"name"`
	Company       string     `json:"company"`
	Position      string     `json:"position"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email"`
	Address       string     `json:"address"`
	Source        string     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Tags          []string   `json:"tags"`
	Notes         string     `json:"notes"`
	CatalogSent   bool       `json:"catalog_sent"`
	CatalogSentAt *time.Time `json:"catalog_sent_at"`
}

// Summary is the list view of a contact
type Summary struct {
	ContactID string    `json:"contact_id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the list view of c
func (c Contact) Summary() Summary {
	return Summary{ContactID: c.ContactID, Name: c.Name, Company: c.Company, CreatedAt: c.CreatedAt}
}

// ContactInput carries the fields of a create or update request. Nil fields
// are left unchanged on update.
type ContactInput struct {
	Name     *string   `json:"name"`
	Company  *string   `json:"company"`
	Position *string   `json:"position"`
	Phone    *string   `json:"phone"`
	Email    *string   `json:"email"`
	Address  *string   `json:"address"`
	Source   *string   `json:"source"`
	Notes    *string   `json:"notes"`
	Tags     *[]string `json:"tags"`
}

// apply copies the set fields of in onto c
func (in ContactInput) apply(c *Contact) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&c.Name, in.Name)
	set(&c.Company, in.Company)
	set(&c.Position, in.Position)
	set(&c.Phone, in.Phone)
	set(&c.Email, in.Email)
	set(&c.Address, in.Address)
	set(&c.Source, in.Source)
	if in.Notes != nil {
		c.Notes = *in.Notes
	}
	if in.Tags != nil {
		c.Tags = dedupeTags(*in.Tags)
	}
}

func (c Contact) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidContact)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: email %q is malformed", ErrInvalidContact, c.Email)
	}
	return nil
}

func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// newContactID returns contact_<8 hex>
func newContactID() string {
	return "contact_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
