package keystore

import (
	"context"
	"encoding/base64"
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

// FileStore keeps entries in a YAML file so keys survive between CLI invocations.
// With a Sealer the keys are sealed before they are written. Every write replaces the
// file atomically; concurrent writers from different processes are last-writer-wins.
type FileStore struct {
	mu     sync.Mutex
	path   string
	sealer *Sealer
}

type fileDoc struct {
	Entries []fileEntry `yaml:"entries"`
}

type fileEntry struct {
	SessionID string    `yaml:"session_id"`
	Key       string    `yaml:"key,omitempty"`
	SealedKey string    `yaml:"sealed_key,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// NewFileStore uses the file at path, creating its directory. sealer may be nil.
func NewFileStore(path string, sealer *Sealer) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty keystore path", ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return &FileStore{path: path, sealer: sealer}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := normalize(e)
	if err != nil {
		return err
	}
	fe, err := s.encode(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Entries {
		if doc.Entries[i].SessionID == fe.SessionID {
			fe.CreatedAt = doc.Entries[i].CreatedAt
			doc.Entries[i] = fe
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Entries = append(doc.Entries, fe)
	}
	return s.write(doc)
}

func (s *FileStore) Get(ctx context.Context, sessionID string) (Entry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	id := strings.TrimSpace(sessionID)
	for _, e := range entries {
		if e.SessionID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	return entries, nil
}

func (s *FileStore) load(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(doc.Entries))
	for _, fe := range doc.Entries {
		e, err := s.decode(fe)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *FileStore) encode(e Entry) (fileEntry, error) {
	fe := fileEntry{SessionID: e.SessionID, CreatedAt: e.CreatedAt.UTC()}
	if s.sealer == nil {
		fe.Key = e.FacilitatorKey
		return fe, nil
	}
	sealed, err := s.sealer.Seal([]byte(e.FacilitatorKey))
	if err != nil {
		return fileEntry{}, fmt.Errorf("keystore: seal: %w", err)
	}
	fe.SealedKey = base64.StdEncoding.EncodeToString(sealed)
	return fe, nil
}

func (s *FileStore) decode(fe fileEntry) (Entry, error) {
	e := Entry{SessionID: fe.SessionID, FacilitatorKey: fe.Key, CreatedAt: fe.CreatedAt.UTC()}
	if fe.SealedKey == "" {
		return e, nil
	}
	if s.sealer == nil {
		return Entry{}, fmt.Errorf("keystore: %s: sealed key but no keystore secret", fe.SessionID)
	}
	sealed, err := base64.StdEncoding.DecodeString(fe.SealedKey)
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: %s: %w", fe.SessionID, err)
	}
	key, err := s.sealer.Open(sealed)
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: %s: %w", fe.SessionID, err)
	}
	e.FacilitatorKey = string(key)
	return e, nil
}

// read returns an empty document when the file does not exist yet. Callers hold mu.
func (s *FileStore) read() (fileDoc, error) {
	var doc fileDoc
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("keystore: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("keystore: parse %s: %w", s.path, err)
	}
	return doc, nil
}

// write replaces the file via a temp file in the same directory. Callers hold mu.
func (s *FileStore) write(doc fileDoc) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("keystore: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".facilitator-keys-*")
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("keystore: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keystore: write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("keystore: replace %s: %w", s.path, err)
	}
	return nil
}
