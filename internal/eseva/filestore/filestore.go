// Package filestore stages uploaded documents on an afero filesystem.
package filestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"eseva/internal/eseva/models"
	dErrors "eseva/pkg/domain-errors"
)

const DefaultMaxFileBytes int64 = 5 << 20

// Store writes uploads under dir, one file per document field. Files are
// capped at maxBytes; an oversized file is removed before the error returns.
type Store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
	now      func() time.Time
	random   io.Reader
}

type Option func(*Store)

func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(fs afero.Fs, dir string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:       fs,
		dir:      dir,
		maxBytes: DefaultMaxFileBytes,
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return s, nil
}

// NewOS stages files on the local disk.
func NewOS(dir string, opts ...Option) (*Store, error) {
	return New(afero.NewOsFs(), dir, opts...)
}

func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save copies r into a new file named <field>_<unixnano>_<8 hex><ext>.
func (s *Store) Save(ctx context.Context, field, originalName string, r io.Reader) (*models.StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := s.fileName(field, originalName)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, name)

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && n > s.maxBytes {
		_ = s.fs.Remove(path)
		return nil, dErrors.New(dErrors.CodeFileTooLarge,
			fmt.Sprintf("file %q exceeds the %d byte limit", field, s.maxBytes)).
			WithDetails("field", field)
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = s.fs.Remove(path)
		return nil, fmt.Errorf("write staged file: %w", err)
	}

	return &models.StagedFile{
		FieldName:    field,
		OriginalName: originalName,
		Path:         path,
		Size:         n,
	}, nil
}

func (s *Store) fileName(field, originalName string) (string, error) {
	var suffix [4]byte
	if _, err := io.ReadFull(s.random, suffix[:]); err != nil {
		return "", fmt.Errorf("random file suffix: %w", err)
	}
	return fmt.Sprintf("%s_%d_%s%s",
		sanitize(field), s.now().UnixNano(), hex.EncodeToString(suffix[:]),
		sanitize(strings.ToLower(filepath.Ext(originalName)))), nil
}

// sanitize keeps ASCII letters, digits, dot, dash and underscore.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// Delete removes a staged file. A missing file is not an error.
func (s *Store) Delete(path string) error {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete staged file: %w", err)
	}
	return nil
}

// DeleteAll removes every staged file concurrently and reports all failures.
func (s *Store) DeleteAll(ctx context.Context, files []models.StagedFile) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	errs := make([]error, len(files))
	for i, f := range files {
		g.Go(func() error {
			errs[i] = s.Delete(f.Path)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Open returns a reader for a stored document.
func (s *Store) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}
