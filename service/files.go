package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/apperror"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
)

// writeFileAtomic writes via a unique temp file and rename so readers never
// see a partial file. Concurrent writers to one path each publish a whole file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// UploadStore keeps uploaded image bytes at <dir>/<image_id>.
type UploadStore struct {
	dir string
}

func NewUploadStore(dir string) *UploadStore {
	return &UploadStore{dir: dir}
}

func (s *UploadStore) path(imageID string) string {
	return filepath.Join(s.dir, imageID)
}

func (s *UploadStore) Put(_ context.Context, imageID string, data []byte) error {
	return writeFileAtomic(s.path(imageID), data)
}

func (s *UploadStore) Get(_ context.Context, imageID string) ([]byte, error) {
	if !utils.ValidImageID(imageID) {
		return nil, apperror.NotFound("image %s not found", imageID)
	}
	data, err := os.ReadFile(s.path(imageID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound("image %s not found", imageID)
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// Exists reports whether imageID was uploaded.
func (s *UploadStore) Exists(_ context.Context, imageID string) bool {
	if !utils.ValidImageID(imageID) {
		return false
	}
	_, err := os.Stat(s.path(imageID))
	return err == nil
}

// ArtifactStore keeps the latest composite per image at
// <dir>/<image_id>_colored.<ext>. Each Put overwrites the previous one.
type ArtifactStore struct {
	dir         string
	ext         string
	contentType string
}

func NewArtifactStore(dir, ext, contentType string) *ArtifactStore {
	return &ArtifactStore{dir: dir, ext: ext, contentType: contentType}
}

// NewArtifactStoreFor returns a store whose file extension and content type
// match the artifact encoding format.
func NewArtifactStoreFor(dir, format string) (*ArtifactStore, error) {
	enc, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("unsupported artifact format %q", format)
	}
	return NewArtifactStore(dir, enc.ext, enc.contentType), nil
}

func (s *ArtifactStore) path(imageID string) string {
	return filepath.Join(s.dir, imageID+"_colored."+s.ext)
}

func (s *ArtifactStore) ref(imageID string, data []byte) model.ArtifactRef {
	return model.ArtifactRef{
		ImageID:     imageID,
		Path:        s.path(imageID),
		ContentType: s.contentType,
		Size:        int64(len(data)),
		Digest:      utils.BytesMD5(data),
	}
}

func (s *ArtifactStore) Put(_ context.Context, imageID string, data []byte) (model.ArtifactRef, error) {
	if err := writeFileAtomic(s.path(imageID), data); err != nil {
		return model.ArtifactRef{}, err
	}
	return s.ref(imageID, data), nil
}

func (s *ArtifactStore) Get(_ context.Context, imageID string) ([]byte, model.ArtifactRef, error) {
	if !utils.ValidImageID(imageID) {
		return nil, model.ArtifactRef{}, apperror.ArtifactMissing(imageID)
	}
	data, err := os.ReadFile(s.path(imageID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ArtifactRef{}, apperror.ArtifactMissing(imageID)
		}
		return nil, model.ArtifactRef{}, fmt.Errorf("read artifact: %w", err)
	}
	return data, s.ref(imageID, data), nil
}
