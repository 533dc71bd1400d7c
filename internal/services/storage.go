package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	storedFileMode = 0o600
	uploadDirMode  = 0o700
)

// StorageService keeps uploaded bytes on local disk under generated names.
type StorageService interface {
	EnsureUploadDir() error
	SaveBytes(data []byte, ext string) (storedFilename, filePath string, err error)
	GetFilePath(filename string) string
	DeleteFile(filePath string) error
}

type storageService struct {
	uploadPath string
}

func NewStorageService(uploadPath string) StorageService {
	return &storageService{
		uploadPath: uploadPath,
	}
}

func (s *storageService) EnsureUploadDir() error {
	if err := os.MkdirAll(s.uploadPath, uploadDirMode); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

// SaveBytes writes data under a random name. The caller's filename is never
// used on disk.
func (s *storageService) SaveBytes(data []byte, ext string) (string, string, error) {
	if err := s.EnsureUploadDir(); err != nil {
		return "", "", err
	}

	storedFilename := uuid.NewString() + strings.ToLower(ext)
	filePath := filepath.Join(s.uploadPath, storedFilename)

	dst, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, storedFileMode)
	if err != nil {
		return "", "", fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := dst.Write(data); err != nil {
		dst.Close()
		os.Remove(filePath)
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(filePath)
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}

	return storedFilename, filePath, nil
}

func (s *storageService) GetFilePath(filename string) string {
	return filepath.Join(s.uploadPath, filepath.Base(filename))
}

// DeleteFile removes a stored file. Paths outside the upload directory are
// refused, and a file that is already gone is not an error.
func (s *storageService) DeleteFile(filePath string) error {
	if filePath == "" {
		return nil
	}

	root, err := filepath.Abs(s.uploadPath)
	if err != nil {
		return fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	target, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve file path: %w", err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		logrus.WithField("path", filePath).Warn("⚠️  Refusing to delete file outside upload directory")
		return fmt.Errorf("%w: %s is outside the upload directory", ErrInvalidArgument, filePath)
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
