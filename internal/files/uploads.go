// Package files stores user uploads and analyzes CAD drawings.
package files

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aihub/agentdesk/internal/logging"
)

// DefaultMaxSize is the upload limit when none is configured.
const DefaultMaxSize = 20 << 20

var (
	ErrTooLarge  = errors.New("files: upload exceeds size limit")
	ErrEmpty     = errors.New("files: upload is empty")
	ErrInvalidID = errors.New("files: invalid file id")
	ErrNotFound  = errors.New("files: file not found")
)

// Upload describes a stored file.
type Upload struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps uploads in a single directory under generated names.
type Store struct {
	dir     string
	maxSize int64
	urlBase string
	log     *logging.Logger
}

// NewStore creates the upload directory if needed.
func NewStore(dir string, maxSize int64, log *logging.Logger) (*Store, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize, urlBase: "/uploads/", log: log.Sub("files")}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// MaxSize returns the per-file size limit in bytes.
func (s *Store) MaxSize() int64 { return s.maxSize }

// Save writes r to a new file. The original name is kept only for its
// extension and the returned metadata.
func (s *Store) Save(r io.Reader, filename string) (*Upload, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "." || filename == string(filepath.Separator) {
		filename = ""
	}
	ext := strings.ToLower(filepath.Ext(filename))
	id := uuid.NewString() + ext
	path := filepath.Join(s.dir, id)

	br := bufio.NewReader(r)
	head, _ := br.Peek(512)
	if len(head) == 0 {
		return nil, ErrEmpty
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating upload: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(br, s.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	if filename == "" {
		filename = id
	}
	up := &Upload{
		ID:        id,
		URL:       s.urlBase + id,
		Filename:  filename,
		Size:      n,
		MimeType:  detectMime(ext, head),
		CreatedAt: time.Now().UTC(),
	}
	s.log.Info().Str("id", id).Str("filename", filename).Int64("size", n).Msg("upload stored")
	return up, nil
}

// Path resolves a file id to its location on disk.
func (s *Store) Path(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || strings.HasPrefix(id, ".") {
		return "", ErrInvalidID
	}
	path := filepath.Join(s.dir, id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(id string) (*os.File, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes a stored file.
func (s *Store) Delete(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func detectMime(ext string, head []byte) string {
	switch ext {
	case ".dxf":
		return "image/vnd.dxf"
	case ".dwg":
		return "image/vnd.dwg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(head)
}
