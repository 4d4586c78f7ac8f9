package secret

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
)

// Permission modes for stored credentials.
const (
	dirPermissions  = 0o700
	filePermissions = 0o600
)

// Sentinel errors.
var (
	ErrNotFound        = errors.New("secret not found")
	ErrExists          = errors.New("secret file already exists")
	ErrInvalidContent  = errors.New("invalid secret content")
	ErrInvalidType     = errors.New("invalid secret type")
	ErrInvalidFileName = errors.New("invalid secret file name")
)

// Secret is the stored metadata of a credential file.
type Secret struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	FileName  string    `json:"fileName"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// Input describes a credential to store. An empty Type is detected from
// the content.
type Input struct {
	Name     string
	FileName string
	Type     Type
	Content  []byte
}

// Store writes credential files and records their metadata.
//
// Thread Safety: safe for concurrent use. File creation is exclusive, so
// two uploads with the same file name cannot both succeed.
type Store struct {
	db  database.Handle
	dir string
	log *logging.Logger
}

// NewStore creates a store writing under dir.
func NewStore(db database.Handle, dir string, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{db: db, dir: dir, log: log}
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute location of a stored secret's file.
func (s *Store) Path(sec *Secret) string {
	return filepath.Join(s.dir, sec.FileName)
}

type secretRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	FileName  string `db:"file_name"`
	Type      string `db:"type"`
	CreatedAt string `db:"created_at"`
}

func (row secretRow) toSecret() Secret {
	sec := Secret{ID: row.ID, Name: row.Name, FileName: row.FileName, Type: Type(row.Type)}
	sec.CreatedAt, _ = time.Parse(time.RFC3339, row.CreatedAt) //nolint:errcheck // format is controlled
	return sec
}

// Create validates in, writes the file and records it. If recording
// fails the file is removed again.
func (s *Store) Create(ctx context.Context, in Input) (*Secret, error) {
	fileName, err := CleanFileName(in.FileName)
	if err != nil {
		return nil, err
	}

	typ := in.Type
	if typ == "" {
		if typ, err = DetectType(in.Content); err != nil {
			return nil, err
		}
	} else if err := Validate(typ, in.Content); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fileName
	}

	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating secrets directory: %w", err)
	}

	path := filepath.Join(s.dir, fileName)
	if err := writeExclusive(path, in.Content); err != nil {
		return nil, err
	}

	sec := &Secret{
		Name:      name,
		FileName:  fileName,
		Type:      typ,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	var id int64
	err = s.db.Prepare(`
		INSERT INTO secrets (name, file_name, type, created_at)
		VALUES (?, ?, ?, ?) RETURNING id`,
	).Get(ctx, &id, sec.Name, sec.FileName, string(sec.Type), sec.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Warn("failed to remove secret file after insert error", "file", fileName, "error", rmErr)
		}
		if database.IsUniqueViolation(err) {
			return nil, ErrExists
		}
		return nil, fmt.Errorf("recording secret: %w", err)
	}
	sec.ID = id

	s.log.Info("secret stored", "id", id, "file", fileName, "type", typ)
	return sec, nil
}

// writeExclusive creates path with restricted permissions, failing if it
// already exists.
func writeExclusive(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("creating secret file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()       //nolint:errcheck // already failing
		os.Remove(path) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("writing secret file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("closing secret file: %w", err)
	}
	return nil
}

// List returns all secrets, optionally restricted to one type.
func (s *Store) List(ctx context.Context, typ Type) ([]Secret, error) {
	query := "SELECT id, name, file_name, type, created_at FROM secrets"
	var args []any
	if typ != "" {
		query += " WHERE type = ?"
		args = append(args, string(typ))
	}
	query += " ORDER BY id"

	var rows []secretRow
	if err := s.db.Prepare(query).All(ctx, &rows, args...); err != nil {
		return nil, fmt.Errorf("listing secrets: %w", err)
	}

	secrets := make([]Secret, 0, len(rows))
	for _, row := range rows {
		secrets = append(secrets, row.toSecret())
	}
	return secrets, nil
}

// Get returns the metadata of one secret.
func (s *Store) Get(ctx context.Context, id int64) (*Secret, error) {
	var row secretRow
	err := s.db.Prepare("SELECT id, name, file_name, type, created_at FROM secrets WHERE id = ?").Get(ctx, &row, id)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting secret: %w", err)
	}
	sec := row.toSecret()
	return &sec, nil
}

// Delete removes the metadata row and then the file. A file that is
// already gone is not an error.
func (s *Store) Delete(ctx context.Context, id int64) (*Secret, error) {
	var sec *Secret
	err := s.db.Transaction(ctx, func(tx database.Queryer) error {
		var row secretRow
		if err := tx.Prepare("SELECT id, name, file_name, type, created_at FROM secrets WHERE id = ?").
			Get(ctx, &row, id); err != nil {
			if errors.Is(err, database.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("getting secret: %w", err)
		}
		if _, err := tx.Prepare("DELETE FROM secrets WHERE id = ?").Run(ctx, id); err != nil {
			return fmt.Errorf("deleting secret: %w", err)
		}
		found := row.toSecret()
		sec = &found
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := os.Remove(s.Path(sec)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("secret row deleted but file removal failed", "file", sec.FileName, "error", err)
		return sec, fmt.Errorf("removing secret file: %w", err)
	}

	s.log.Info("secret deleted", "id", id, "file", sec.FileName)
	return sec, nil
}
