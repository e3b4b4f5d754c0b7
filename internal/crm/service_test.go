package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// newTestService returns a service whose clock advances a minute per call
func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(setupFileStore(t), slog.New(slog.DiscardHandler))
	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestService_Create(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, ContactInput{
		Name:    ptr("  林美華 "),
		Company: ptr("EdgeXpo"),
		Email:   ptr("mei@example.com"),
		Notes:   ptr("met at booth"),
		Tags:    ptr([]string{"lead", "lead", " "}),
	})
	require.NoError(t, err)

	assert.Regexp(t, `^contact_[0-9a-f]{8}$`, c.ContactID)
	assert.Equal(t, "林美華", c.Name)
	assert.Equal(t, DefaultSource, c.Source)
	assert.Equal(t, []string{"lead"}, c.Tags)
	assert.False(t, c.CatalogSent)
	assert.Nil(t, c.CatalogSentAt)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)

	got, err := svc.Get(ctx, c.ContactID)
	require.NoError(t, err)
	assert.Equal(t, "met at booth", got.Notes)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   ContactInput
	}{
		{"missing name", ContactInput{Company: ptr("Acme")}},
		{"blank name", ContactInput{Name: ptr("   ")}},
		{"bad email", ContactInput{Name: ptr("A"), Email: ptr("not-an-email")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)

			_, err := svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidContact)

			page, err := svc.List(context.Background(), 10, 0)
			require.NoError(t, err)
			assert.Zero(t, page.Total)
		})
	}
}

func TestService_Update(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, ContactInput{Name: ptr("Chen"), Company: ptr("Acme"), Phone: ptr("0912")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ContactID, ContactInput{Position: ptr("CTO"), Phone: ptr("0988")})
	require.NoError(t, err)

	assert.Equal(t, c.ContactID, updated.ContactID)
	assert.Equal(t, "Chen", updated.Name)
	assert.Equal(t, "Acme", updated.Company)
	assert.Equal(t, "CTO", updated.Position)
	assert.Equal(t, "0988", updated.Phone)
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))

	_, err = svc.Update(ctx, c.ContactID, ContactInput{Name: ptr("")})
	assert.ErrorIs(t, err, ErrInvalidContact)

	_, err = svc.Update(ctx, "contact_missing", ContactInput{Name: ptr("X")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_MarkCatalogSent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, ContactInput{Name: ptr("Lee")})
	require.NoError(t, err)

	marked, err := svc.MarkCatalogSent(ctx, c.ContactID)
	require.NoError(t, err)

	assert.True(t, marked.CatalogSent)
	require.NotNil(t, marked.CatalogSentAt)
	assert.Equal(t, marked.UpdatedAt, *marked.CatalogSentAt)
}

func TestService_Delete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, ContactInput{Name: ptr("Wu")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, c.ContactID))
	assert.ErrorIs(t, svc.Delete(ctx, c.ContactID), ErrNotFound)

	_, err = svc.Get(ctx, c.ContactID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := range 12 {
		_, err := svc.Create(ctx, ContactInput{Name: ptr(fmt.Sprintf("c%02d", i))})
		require.NoError(t, err)
	}

	tests := []struct {
		name          string
		limit, offset int
		wantNames     []string
		wantLimit     int
	}{
		{"default limit", 0, 0, []string{"c00", "c01", "c02", "c03", "c04", "c05", "c06", "c07", "c08", "c09"}, 10},
		{"second page", 5, 5, []string{"c05", "c06", "c07", "c08", "c09"}, 5},
		{"tail", 10, 10, []string{"c10", "c11"}, 10},
		{"past end", 10, 50, []string{}, 10},
		{"negative offset", 2, -3, []string{"c00", "c01"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(ctx, tt.limit, tt.offset)
			require.NoError(t, err)

			names := make([]string, 0, len(page.Contacts))
			for _, c := range page.Contacts {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, 12, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)
		})
	}
}

func TestService_Statistics(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	companies := []string{"Acme", "Acme", "", "Globex", "Acme", "Globex", ""}
	for i, company := range companies {
		_, err := svc.Create(ctx, ContactInput{Name: ptr(fmt.Sprintf("c%d", i)), Company: ptr(company)})
		require.NoError(t, err)
	}

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.TotalContacts)
	assert.Equal(t, map[string]int{"Acme": 3, "Globex": 2, unknownCompany: 2}, stats.Companies)
	require.Len(t, stats.RecentContacts, 5)
	assert.Equal(t, "c6", stats.RecentContacts[0].Name)
	assert.Equal(t, "c2", stats.RecentContacts[4].Name)
	require.NotNil(t, stats.LastUpdated)
}

func TestService_StatisticsEmpty(t *testing.T) {
	svc := newTestService(t)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.TotalContacts)
	assert.Empty(t, stats.Companies)
	assert.NotNil(t, stats.RecentContacts)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) List(context.Context) ([]Contact, error) { return nil, f.err }
func (f failingStore) Save(context.Context, Contact) error     { return f.err }
func (f failingStore) Update(context.Context, string, func(*Contact) error) (Contact, error) {
	return Contact{}, f.err
}

func TestService_StoreErrorsAreWrapped(t *testing.T) {
	boom := errors.New("disk full")
	svc := NewService(failingStore{err: boom}, slog.New(slog.DiscardHandler))

	_, err := svc.Create(context.Background(), ContactInput{Name: ptr("A")})
	assert.ErrorIs(t, err, boom)

	_, err = svc.List(context.Background(), 10, 0)
	assert.ErrorIs(t, err, boom)

	_, err = svc.Statistics(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = svc.Update(context.Background(), "contact_1", ContactInput{Position: ptr("CTO")})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// deleteFirstStore removes the contact just before every update reaches the store
type deleteFirstStore struct {
	Store
}

func (d deleteFirstStore) Update(ctx context.Context, id string, fn func(*Contact) error) (Contact, error) {
	if _, err := d.Store.Delete(ctx, id); err != nil {
		return Contact{}, err
	}
	return d.Store.Update(ctx, id, fn)
}

func TestService_UpdateAfterConcurrentDelete(t *testing.T) {
	store := setupFileStore(t)
	svc := NewService(deleteFirstStore{Store: store}, slog.New(slog.DiscardHandler))
	ctx := context.Background()
	c, err := svc.Create(ctx, ContactInput{Name: ptr("Lin")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, c.ContactID, ContactInput{Position: ptr("CTO")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.MarkCatalogSent(ctx, c.ContactID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, c.ContactID)
	assert.ErrorIs(t, err, ErrNotFound)
}
