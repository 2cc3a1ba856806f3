package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type fileData struct {
	Preferences  Preferences   `yaml:"preferences"`
	Contacts     []Contact     `yaml:"contacts"`
	Transactions []Transaction `yaml:"transactions"`
	Bookmarks    []Bookmark    `yaml:"bookmarks"`
}

// File keeps all data in one YAML document, rewritten atomically on every
// change.
type File struct {
	path string

	mu   sync.Mutex
	data fileData
}

var _ Store = (*File)(nil)

// OpenFile loads path, starting empty when it does not exist yet.
func OpenFile(path string) (*File, error) {
	f := &File{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return f, nil
}

// Preferences implements [Store].
func (f *File) Preferences(context.Context) (Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Preferences, nil
}

// SavePreferences implements [Store].
func (f *File) SavePreferences(_ context.Context, p Preferences) error {
	return f.update(func(d *fileData) { d.Preferences = p })
}

// SaveContact implements [Store].
func (f *File) SaveContact(_ context.Context, c Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return f.update(func(d *fileData) {
		for i := range d.Contacts {
			if strings.EqualFold(d.Contacts[i].Name, c.Name) {
				d.Contacts[i] = c
				return
			}
		}
		d.Contacts = append(d.Contacts, c)
	})
}

// Contacts implements [Store].
func (f *File) Contacts(context.Context) ([]Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Contact(nil), f.data.Contacts...), nil
}

// RecordTransaction implements [Store].
func (f *File) RecordTransaction(_ context.Context, t Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return f.update(func(d *fileData) { d.Transactions = append(d.Transactions, t) })
}

// Transactions implements [Store].
func (f *File) Transactions(context.Context) ([]Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transaction(nil), f.data.Transactions...), nil
}

// SaveBookmark implements [Store].
func (f *File) SaveBookmark(_ context.Context, b Bookmark) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return f.update(func(d *fileData) {
		for i := range d.Bookmarks {
			if strings.EqualFold(d.Bookmarks[i].Name, b.Name) {
				d.Bookmarks[i] = b
				return
			}
		}
		d.Bookmarks = append(d.Bookmarks, b)
	})
}

// Bookmarks implements [Store].
func (f *File) Bookmarks(context.Context) ([]Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Bookmark(nil), f.data.Bookmarks...), nil
}

// Close implements [Store].
func (f *File) Close() error { return nil }

// update applies fn to a copy of the data and commits it only once it is on
// disk.
func (f *File) update(fn func(*fileData)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.data
	next.Contacts = append([]Contact(nil), f.data.Contacts...)
	next.Transactions = append([]Transaction(nil), f.data.Transactions...)
	next.Bookmarks = append([]Bookmark(nil), f.data.Bookmarks...)
	fn(&next)

	raw, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	f.data = next
	return nil
}
