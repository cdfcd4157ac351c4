package image

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// Store: content-addressed image store
// ---------------------------------------------------------------------------

// ErrNotFound is returned when no image matches the requested hash.
var ErrNotFound = errors.New("image: not found")

// Store persists images in a SQLite database keyed by content hash. Storing
// the same program twice is a no-op; names are labels, not keys, so several
// names may point at the same content.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS images (
	hash       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	data       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_name ON images (name);
`

// OpenStore opens (and if needed initializes) a store at the given path.
// Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("image: open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("image: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores an image and returns its content hash. An existing row with the
// same hash is left untouched except for the name, which is updated.
func (s *Store) Put(img *Image) (string, error) {
	data, err := img.Marshal()
	if err != nil {
		return "", err
	}
	hash, err := img.HashString()
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO images (hash, name, created_at, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (hash) DO UPDATE SET name = excluded.name`,
		hash, img.Name, time.Now().UTC().Format(time.RFC3339), data,
	)
	if err != nil {
		return "", fmt.Errorf("image: put: %w", err)
	}
	return hash, nil
}

// Get loads the image with the given content hash.
func (s *Store) Get(hash string) (*Image, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM images WHERE hash = ?`, hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("image: get: %w", err)
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	// Verify the row still matches its key.
	actual, err := img.HashString()
	if err != nil {
		return nil, err
	}
	if actual != hash {
		return nil, fmt.Errorf("image: content hash mismatch: stored %s, computed %s", hash, actual)
	}
	return img, nil
}

// GetByName loads the most recently stored image with the given name.
func (s *Store) GetByName(name string) (*Image, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT hash FROM images WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("image: get by name: %w", err)
	}
	return s.Get(hash)
}

// Entry describes one stored image.
type Entry struct {
	Hash      string
	Name      string
	CreatedAt string
	Size      int
}

// List returns every stored image, newest first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT hash, name, created_at, length(data) FROM images ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("image: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.Name, &e.CreatedAt, &e.Size); err != nil {
			return nil, fmt.Errorf("image: list scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the image with the given hash. Deleting a missing hash is
// ErrNotFound.
func (s *Store) Delete(hash string) error {
	res, err := s.db.Exec(`DELETE FROM images WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("image: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
