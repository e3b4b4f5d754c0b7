package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	recentContacts   = 5
	unknownCompany   = "未知公司"
)

// Page is one slice of the contact list
type Page struct {
	Contacts []Summary `json:"contacts"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Statistics summarizes the contact list
type Statistics struct {
	TotalContacts  int            `json:"total_contacts"`
	Companies      map[string]int `json:"companies"`
	RecentContacts []Contact      `json:"recent_contacts"`
	LastUpdated    *time.Time     `json:"last_updated"`
}

// Service implements the contact operations on top of a Store
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a CRM service backed by store
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create validates in and stores a new contact
func (s *Service) Create(ctx context.Context, in ContactInput) (Contact, error) {
	now := s.now().UTC()
	c := Contact{
		ContactID: newContactID(),
		Source:    DefaultSource,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{},
	}
	in.apply(&c)
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if err := c.validate(); err != nil {
		return Contact{}, err
	}

	if err := s.store.Save(ctx, c); err != nil {
		return Contact{}, fmt.Errorf("failed to save contact: %w", err)
	}
	s.logger.Info("contact created", "contact_id", c.ContactID)
	return c, nil
}

// Get returns the contact with id or ErrNotFound
func (s *Service) Get(ctx context.Context, id string) (Contact, error) {
	return s.store.Get(ctx, id)
}

// Update applies the set fields of in to an existing contact
func (s *Service) Update(ctx context.Context, id string, in ContactInput) (Contact, error) {
	c, err := s.store.Update(ctx, id, func(c *Contact) error {
		in.apply(c)
		if err := c.validate(); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return Contact{}, updateError(err)
	}
	return c, nil
}

// MarkCatalogSent records that the product catalog was sent to a contact
func (s *Service) MarkCatalogSent(ctx context.Context, id string) (Contact, error) {
	c, err := s.store.Update(ctx, id, func(c *Contact) error {
		now := s.now().UTC()
		c.CatalogSent = true
		c.CatalogSentAt = &now
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Contact{}, updateError(err)
	}
	s.logger.Info("catalog marked as sent", "contact_id", id)
	return c, nil
}

func updateError(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidContact) {
		return err
	}
	return fmt.Errorf("failed to update contact: %w", err)
}

// Delete removes a contact, returning ErrNotFound if it does not exist
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.Info("contact deleted", "contact_id", id)
	return nil
}

// List returns up to limit contacts starting at offset, in creation order.
// A non-positive limit means 10; limits above 100 are clamped.
func (s *Service) List(ctx context.Context, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	contacts, err := s.store.List(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list contacts: %w", err)
	}

	page := Page{Contacts: []Summary{}, Total: len(contacts), Limit: limit, Offset: offset}
	if offset >= len(contacts) {
		return page, nil
	}
	end := min(offset+limit, len(contacts))
	for _, c := range contacts[offset:end] {
		page.Contacts = append(page.Contacts, c.Summary())
	}
	return page, nil
}

// Statistics counts contacts per company and returns the five most recent
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	contacts, err := s.store.List(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("failed to list contacts: %w", err)
	}

	stats := Statistics{
		TotalContacts:  len(contacts),
		Companies:      make(map[string]int),
		RecentContacts: []Contact{},
	}
	for _, c := range contacts {
		company := c.Company
		if company == "" {
			company = unknownCompany
		}
		stats.Companies[company]++
	}

	recent := append([]Contact(nil), contacts...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > recentContacts {
		recent = recent[:recentContacts]
	}
	stats.RecentContacts = append(stats.RecentContacts, recent...)

	updated, err := s.store.LastUpdated(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("failed to read last update: %w", err)
	}
	if !updated.IsZero() {
		stats.LastUpdated = &updated
	}
	return stats, nil
}
