// Package ota stages firmware and filesystem images received over HTTP.
// A staged image is applied by the bootloader on the next reboot.
package ota

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/jetkvm/jiggler/internal/logging"
	"github.com/jetkvm/jiggler/internal/storage"
	"github.com/rs/zerolog"
)

type Target string

const (
	TargetFirmware   Target = "firmware"
	TargetFilesystem Target = "filesystem"
)

var (
	ErrInvalidTarget  = errors.New("unknown update target")
	ErrInvalidVersion = errors.New("invalid update version")
	ErrDowngrade      = errors.New("update is older than the running version")
	ErrEmptyImage     = errors.New("update image is empty")
)

func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case "", TargetFirmware:
		return TargetFirmware, nil
	case TargetFilesystem:
		return TargetFilesystem, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTarget, s)
}

func (t Target) imageName() string {
	return string(t) + ".bin"
}

type Stager struct {
	dir     string
	running *semver.Version
	l       *zerolog.Logger
}

func NewStager(dir string, running *semver.Version, logger *zerolog.Logger) *Stager {
	if logger == nil {
		logger = logging.GetSubsystemLogger("ota")
	}
	return &Stager{dir: dir, running: running, l: logger}
}

func (s *Stager) Dir() string {
	return s.dir
}

func (s *Stager) StagedPath(t Target) string {
	return filepath.Join(s.dir, t.imageName())
}

// CheckVersion validates an announced image version. An empty version is
// accepted since the image header is not inspected here.
func (s *Stager) CheckVersion(candidate string, force bool) error {
	if candidate == "" {
		return nil
	}
	v, err := semver.NewVersion(candidate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	if s.running != nil && v.LessThan(s.running) && !force {
		return fmt.Errorf("%w: %s < %s", ErrDowngrade, v, s.running)
	}
	return nil
}

// Stage streams r into "<dir>/<target>.bin". The image only replaces a
// previously staged one once it is received completely.
func (s *Stager) Stage(t Target, r io.Reader, size int64) (string, error) {
	scopedLogger := s.l.With().Str("target", string(t)).Int64("size", size).Logger()

	upload, err := storage.StartUpload(s.dir, t.imageName(), size)
	if err != nil {
		return "", err
	}
	scopedLogger.Info().Str("upload_id", upload.ID).Msg("receiving update image")

	if _, err := io.Copy(upload, r); err != nil {
		upload.Abort()
		scopedLogger.Warn().Err(err).Int64("received", upload.AlreadyUploadedBytes).Msg("update upload failed")
		return "", fmt.Errorf("failed to receive update image: %w", err)
	}
	if upload.AlreadyUploadedBytes == 0 {
		upload.Abort()
		return "", ErrEmptyImage
	}

	path, err := upload.Complete()
	if err != nil {
		scopedLogger.Warn().Err(err).Msg("update upload incomplete")
		return "", err
	}

	scopedLogger.Info().Str("path", path).Int64("received", upload.AlreadyUploadedBytes).Msg("update image staged")
	return path, nil
}
