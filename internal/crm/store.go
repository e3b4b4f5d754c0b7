package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ContactsFile is the file store's name under the data directory
const ContactsFile = "contacts.json"

const storeVersion = "1.0"

// Store persists contacts. List returns contacts in creation order.
// Update reads, modifies and writes one contact atomically; it returns
// ErrNotFound when the contact does not exist and fn's error unchanged.
type Store interface {
	Get(ctx context.Context, id string) (Contact, error)
	Save(ctx context.Context, c Contact) error
	Update(ctx context.Context, id string, fn func(c *Contact) error) (Contact, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]Contact, error)
	LastUpdated(ctx context.Context) (time.Time, error)
}

type fileMetadata struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

type fileData struct {
	Contacts []Contact    `json:"contacts"`
	Metadata fileMetadata `json:"metadata"`
}

// FileStore keeps every contact in a single JSON document
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileStore opens dir/contacts.json, creating it when missing
func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{path: filepath.Join(dir, ContactsFile), now: time.Now}

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		now := s.now().UTC()
		data := fileData{
			Contacts: []Contact{},
			Metadata: fileMetadata{Version: storeVersion, CreatedAt: now, LastUpdated: now},
		}
		if err := s.write(data); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat contacts file: %w", err)
	}
	return s, nil
}

func (s *FileStore) read() (fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fileData{}, fmt.Errorf("failed to read contacts file: %w", err)
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fileData{}, fmt.Errorf("failed to parse contacts file: %w", err)
	}
	if data.Metadata.Version == "" {
		data.Metadata.Version = storeVersion
	}
	return data, nil
}

func (s *FileStore) write(data fileData) error {
	if data.Contacts == nil {
		data.Contacts = []Contact{}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal contacts: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".contacts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write contacts file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close contacts file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Get returns the contact with id
func (s *FileStore) Get(_ context.Context, id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return Contact{}, err
	}
	for _, c := range data.Contacts {
		if c.ContactID == id {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

// Save inserts c or replaces the contact with the same id in place
func (s *FileStore) Save(_ context.Context, c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}

	replaced := false
	for i := range data.Contacts {
		if data.Contacts[i].ContactID == c.ContactID {
			data.Contacts[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		data.Contacts = append(data.Contacts, c)
	}

	data.Metadata.LastUpdated = s.now().UTC()
	return s.write(data)
}

// Update applies fn to the stored contact under the store lock
func (s *FileStore) Update(_ context.Context, id string, fn func(c *Contact) error) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return Contact{}, err
	}

	for i := range data.Contacts {
		if data.Contacts[i].ContactID != id {
			continue
		}
		c := data.Contacts[i]
		if err := fn(&c); err != nil {
			return Contact{}, err
		}
		c.ContactID = id
		data.Contacts[i] = c
		data.Metadata.LastUpdated = s.now().UTC()
		if err := s.write(data); err != nil {
			return Contact{}, err
		}
		return c, nil
	}
	return Contact{}, ErrNotFound
}

// Delete removes the contact with id, reporting whether it existed
func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return false, err
	}

	kept := data.Contacts[:0]
	for _, c := range data.Contacts {
		if c.ContactID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(data.Contacts) {
		return false, nil
	}
	data.Contacts = kept
	data.Metadata.LastUpdated = s.now().UTC()
	return true, s.write(data)
}

// List returns every contact in file order
func (s *FileStore) List(_ context.Context) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return data.Contacts, nil
}

// LastUpdated returns the time of the last write
func (s *FileStore) LastUpdated(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return time.Time{}, err
	}
	return data.Metadata.LastUpdated, nil
}
