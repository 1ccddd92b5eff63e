package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DiskStore keeps one file per job under a directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory if needed and returns a DiskStore rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String())
}

// Put writes the image to a temp file and links it into place, so readers
// never see a partially written image and an existing image is never replaced.
func (s *DiskStore) Put(ctx context.Context, img Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(img.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}

	if err := os.Link(tmpName, s.path(img.JobID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("link image: %w", err)
	}
	return nil
}

// Get reads the image back. The content type is sniffed from the bytes.
func (s *DiskStore) Get(ctx context.Context, jobID uuid.UUID) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	return &Image{
		JobID:       jobID,
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

func (s *DiskStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(jobID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

var _ Store = (*DiskStore)(nil)
