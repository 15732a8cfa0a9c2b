// Package audio models the user's input: the source file, the segment duration,
// and the segment command surface handed to the transcoding engine.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
)

// Static errors for source validation.
var (
	// ErrNotAudio is returned when the file's content type is not audio/*.
	ErrNotAudio = errors.New("audio: file is not an audio type")
	// ErrMissingExtension is returned when no file extension can be derived.
	ErrMissingExtension = errors.New("audio: cannot determine file extension")
	// ErrEmptyFile is returned when the source file has no content.
	ErrEmptyFile = errors.New("audio: file is empty")
)

// genericContentType is what browsers and multipart clients send when they
// don't know the type.
const genericContentType = "application/octet-stream"

// SourceFile is the user-supplied input.
// It is immutable once created; its bytes are loaded on first use.
type SourceFile struct {
	name        string
	size        int64
	contentType string

	load func() ([]byte, error)
	once sync.Once
	data []byte
	err  error
}

// NewSourceFile creates a SourceFile from in-memory data.
// An empty or generic content type is detected from the data.
func NewSourceFile(name, contentType string, data []byte) *SourceFile {
	return &SourceFile{
		name:        filepath.Base(name),
		size:        int64(len(data)),
		contentType: resolveContentType(contentType, data),
		load:        func() ([]byte, error) { return data, nil },
	}
}

// OpenSourceFile creates a SourceFile backed by a file on disk.
// Only the header is read up front for type detection.
func OpenSourceFile(path string) (*SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}

	return &SourceFile{
		name:        filepath.Base(path),
		size:        info.Size(),
		contentType: baseType(mtype.String()),
		load: func() ([]byte, error) {
			return os.ReadFile(path) // #nosec G304 - path is chosen by the user
		},
	}, nil
}

// Name returns the display name of the file.
func (f *SourceFile) Name() string { return f.name }

// Size returns the file size in bytes.
func (f *SourceFile) Size() int64 { return f.size }

// ContentType returns the MIME type of the file without parameters.
func (f *SourceFile) ContentType() string { return f.contentType }

// Bytes returns the file contents, loading them on first call.
func (f *SourceFile) Bytes() ([]byte, error) {
	f.once.Do(func() {
		f.data, f.err = f.load()
		if f.err != nil {
			f.err = fmt.Errorf("read source %s: %w", f.name, f.err)
		}
	})
	return f.data, f.err
}

// validExtension keeps the engine's output pattern free of format verbs,
// spaces and path separators.
var validExtension = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Extension returns the file extension without the leading dot.
// When the name has no usable one, the extension is derived from the content type.
func (f *SourceFile) Extension() (string, error) {
	if ext := strings.TrimPrefix(filepath.Ext(f.name), "."); validExtension.MatchString(ext) {
		return ext, nil
	}
	if mtype := mimetype.Lookup(f.contentType); mtype != nil {
		if ext := strings.TrimPrefix(mtype.Extension(), "."); validExtension.MatchString(ext) {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissingExtension, f.name)
}

// Validate checks that the file is non-empty audio with a usable extension.
func (f *SourceFile) Validate() error {
	if f.size == 0 {
		return ErrEmptyFile
	}
	if err := ValidateContentType(f.contentType); err != nil {
		return err
	}
	if _, err := f.Extension(); err != nil {
		return err
	}
	return nil
}

// Tags holds the descriptive metadata embedded in the file, if any.
type Tags struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Format string `json:"format,omitempty"`
}

// Tags reads ID3/MP4/FLAC/OGG metadata from the file.
// Files without tags return an empty Tags and no error.
func (f *SourceFile) Tags() (Tags, error) {
	data, err := f.Bytes()
	if err != nil {
		return Tags{}, err
	}

	meta, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return Tags{}, nil
		}
		return Tags{}, fmt.Errorf("read tags: %w", err)
	}

	return Tags{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
		Format: string(meta.FileType()),
	}, nil
}

// ValidateContentType rejects anything that is not audio/*.
func ValidateContentType(contentType string) error {
	if !strings.HasPrefix(baseType(contentType), "audio/") {
		return fmt.Errorf("%w: %q", ErrNotAudio, contentType)
	}
	return nil
}

// resolveContentType keeps a declared type unless it is empty or generic.
func resolveContentType(declared string, data []byte) string {
	declared = baseType(declared)
	if declared != "" && declared != genericContentType {
		return declared
	}
	return baseType(mimetype.Detect(data).String())
}

// baseType strips MIME parameters such as "; charset=binary".
func baseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
