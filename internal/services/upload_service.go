package services

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StaticPrefix is the URL path under which the upload directory is served.
const StaticPrefix = "/static/"

// StoredImage describes an uploaded file on disk.
type StoredImage struct {
	Name string // file name inside the upload directory
	Path string // absolute or relative path on disk
	URL  string // public path, e.g. /static/imagen_1718000000000.jpg
	Size int64
}

// UploadServiceProvider defines the interface for image uploads.
type UploadServiceProvider interface {
	Store(originalName string, r io.Reader) (StoredImage, error)
	Open(imageURL string) (io.ReadCloser, StoredImage, error)
	Dir() string
}

// UploadService writes uploaded images into the static directory.
type UploadService struct {
	dir string
	now func() time.Time
}

// NewUploadService creates a new UploadService rooted at dir. The directory
// is created when missing.
func NewUploadService(dir string) (*UploadService, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create upload directory: %w", err)
	}
	return &UploadService{dir: dir, now: time.Now}, nil
}

// Dir returns the upload directory.
func (s *UploadService) Dir() string {
	return s.dir
}

// Store saves r as imagen_<unix-millis><ext>. If another upload already
// claimed that name within the same millisecond, a short random suffix is added.
func (s *UploadService) Store(originalName string, r io.Reader) (StoredImage, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	base := fmt.Sprintf("imagen_%d", s.now().UnixMilli())

	name := base + ext
	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		name = fmt.Sprintf("%s_%s%s", base, uuid.New().String()[:8], ext)
		file, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return StoredImage{}, fmt.Errorf("could not create upload file: %w", err)
	}

	stored := StoredImage{Name: name, Path: filepath.Join(s.dir, name), URL: StaticPrefix + name}
	size, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(stored.Path) // Clean up partial file
		return StoredImage{}, fmt.Errorf("could not write upload file: %w", err)
	}
	stored.Size = size
	return stored, nil
}

// Open resolves a public image URL (relative or absolute) back to the file
// in the upload directory.
func (s *UploadService) Open(imageURL string) (io.ReadCloser, StoredImage, error) {
	name, err := FileNameFromURL(imageURL)
	if err != nil {
		return nil, StoredImage{}, err
	}
	stored := StoredImage{Name: name, Path: filepath.Join(s.dir, name), URL: StaticPrefix + name}
	file, err := os.Open(stored.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, StoredImage{}, fmt.Errorf("%s: %w", imageURL, ErrNoImage)
		}
		return nil, StoredImage{}, err
	}
	if info, err := file.Stat(); err == nil {
		stored.Size = info.Size()
	}
	return file, stored, nil
}

// FileNameFromURL extracts the file name from a /static/<name> URL and
// rejects anything that would escape the upload directory.
func FileNameFromURL(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("invalid image url %q: %w", imageURL, ErrNoImage)
	}
	p := u.Path
	idx := strings.LastIndex(p, StaticPrefix)
	if idx < 0 {
		return "", fmt.Errorf("image url %q is not under %s: %w", imageURL, StaticPrefix, ErrNoImage)
	}
	name := p[idx+len(StaticPrefix):]
	if name == "" || name != path.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid image name in %q: %w", imageURL, ErrNoImage)
	}
	return name, nil
}
