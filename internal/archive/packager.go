// Package archive packages segment artifacts into a single ZIP download.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/maauso/audiosplit/internal/segment"
)

// ArchiveName is the file name offered for the packaged download.
const ArchiveName = "segments.zip"

// Method selects how entries are stored in the archive.
type Method string

const (
	// MethodStore writes entries uncompressed. Audio is already compressed.
	MethodStore Method = "store"
	// MethodDeflate compresses entries with deflate.
	MethodDeflate Method = "deflate"
)

// ErrInvalidMethod is returned for an unknown archive method.
var ErrInvalidMethod = errors.New("archive: invalid method")

// ParseMethod converts a configuration value into a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodStore, MethodDeflate:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

func (m Method) zipMethod() uint16 {
	if m == MethodDeflate {
		return zip.Deflate
	}
	return zip.Store
}

// Packager builds ZIP archives from artifacts.
type Packager struct {
	method Method
	now    func() time.Time
}

// Option configures a Packager.
type Option func(*Packager)

// WithMethod sets the entry method. Unknown methods are ignored.
func WithMethod(m Method) Option {
	return func(p *Packager) {
		if m == MethodStore || m == MethodDeflate {
			p.method = m
		}
	}
}

// NewPackager creates a Packager that stores entries uncompressed by default.
func NewPackager(opts ...Option) *Packager {
	p := &Packager{
		method: MethodStore,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Method returns the entry method in use.
func (p *Packager) Method() Method { return p.method }

// PackageAll returns a ZIP archive holding one entry per artifact, named after
// the artifact and byte-identical to it. Zero artifacts yield a valid empty
// archive.
func (p *Packager) PackageAll(ctx context.Context, artifacts []segment.Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteTo(ctx, &buf, artifacts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo streams the archive for artifacts to w.
func (p *Packager) WriteTo(ctx context.Context, w io.Writer, artifacts []segment.Artifact) error {
	zw := zip.NewWriter(w)
	modified := p.now()

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		data, err := a.Bytes()
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", a.Name, err)
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     a.Name,
			Method:   p.method.zipMethod(),
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("create entry %s: %w", a.Name, err)
		}
		if _, err := entry.Write(data); err != nil {
			return fmt.Errorf("write entry %s: %w", a.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
