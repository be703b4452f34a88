package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const incompleteSuffix = ".incomplete"

// PendingUpload is a file being received in chunks. It only becomes visible
// under its final name once Complete succeeds.
type PendingUpload struct {
	ID                   string
	File                 *os.File
	Size                 int64
	AlreadyUploadedBytes int64

	finalPath string
}

var pendingUploads = make(map[string]*PendingUpload)
var pendingUploadsMutex sync.Mutex

// StartUpload opens "<dir>/<name>.incomplete" and registers it under a fresh id.
func StartUpload(dir, name string, size int64) (*PendingUpload, error) {
	sanitized, err := SanitizeFilename(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	finalPath := filepath.Join(dir, sanitized)
	file, err := os.Create(finalPath + incompleteSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	upload := &PendingUpload{
		ID:        uuid.NewString(),
		File:      file,
		Size:      size,
		finalPath: finalPath,
	}

	pendingUploadsMutex.Lock()
	defer pendingUploadsMutex.Unlock()
	pendingUploads[upload.ID] = upload

	return upload, nil
}

func (u *PendingUpload) Write(p []byte) (int, error) {
	n, err := u.File.Write(p)
	u.AlreadyUploadedBytes += int64(n)
	return n, err
}

// Complete closes the file and renames it to its final name. When the size
// was announced up front, a short upload is rejected.
func (u *PendingUpload) Complete() (string, error) {
	defer DeletePendingUpload(u.ID)

	if err := u.File.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	if u.Size > 0 && u.AlreadyUploadedBytes != u.Size {
		_ = os.Remove(u.File.Name())
		return "", fmt.Errorf("upload ended after %d of %d bytes", u.AlreadyUploadedBytes, u.Size)
	}

	newName := strings.TrimSuffix(u.File.Name(), incompleteSuffix)
	if err := os.Rename(u.File.Name(), newName); err != nil {
		return "", fmt.Errorf("failed to rename uploaded file: %w", err)
	}
	return newName, nil
}

// Abort discards the partial file.
func (u *PendingUpload) Abort() {
	defer DeletePendingUpload(u.ID)
	_ = u.File.Close()
	_ = os.Remove(u.File.Name())
}

func GetPendingUpload(uploadId string) (*PendingUpload, bool) {
	pendingUploadsMutex.Lock()
	defer pendingUploadsMutex.Unlock()
	upload, ok := pendingUploads[uploadId]
	return upload, ok
}

func DeletePendingUpload(uploadId string) {
	pendingUploadsMutex.Lock()
	defer pendingUploadsMutex.Unlock()
	delete(pendingUploads, uploadId)
}
