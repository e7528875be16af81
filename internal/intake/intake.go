// Package intake validates inbound PDF documents and persists them under a
// fixed storage root.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/logger"
	"github.com/matsen/firstrecord/internal/metrics"
)

// DefaultMaxBytes is the upload ceiling.
const DefaultMaxBytes int64 = 50 * 1024 * 1024

// PlaceholderName replaces a file name that sanitizes to nothing.
const PlaceholderName = "document"

const maxNameLen = 200

// Signature is the leading byte sequence of every PDF file.
var Signature = []byte{0x25, 0x50, 0x44, 0x46}

// Rejection errors, in validation order.
var (
	ErrUnsupportedType  = fmt.Errorf("%w: only .pdf files are accepted", apperr.ErrValidation)
	ErrTooLarge         = fmt.Errorf("%w: file exceeds size limit", apperr.ErrSecurityRejection)
	ErrInvalidSignature = fmt.Errorf("%w: file is not a PDF", apperr.ErrSecurityRejection)
	ErrPathEscape       = fmt.Errorf("%w: storage path escapes root", apperr.ErrSecurityRejection)
)

// Upload is one inbound file. Size is the declared size, or -1 if unknown.
type Upload struct {
	FileName  string
	Size      int64
	Body      io.Reader
	SourceURL string
}

// Intake accepts uploads into Root.
type Intake struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Intake.
type Option func(*Intake)

// WithMaxBytes overrides the size ceiling.
func WithMaxBytes(n int64) Option {
	return func(in *Intake) {
		if n > 0 {
			in.maxBytes = n
		}
	}
}

// WithClock sets the time source used for file name prefixes.
func WithClock(now func() time.Time) Option {
	return func(in *Intake) {
		in.now = now
	}
}

// New creates an Intake rooted at root, creating the directory if needed.
func New(root string, logger *slog.Logger, opts ...Option) (*Intake, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	in := &Intake{root: abs, maxBytes: DefaultMaxBytes, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Root returns the absolute storage root.
func (in *Intake) Root() string {
	return in.root
}

// MaxBytes returns the size ceiling.
func (in *Intake) MaxBytes() int64 {
	return in.maxBytes
}

// Accept validates u and writes it to the storage root. Checks run in a fixed
// order: extension, size, signature, name sanitization, path containment.
// Nothing is written unless every check passes.
func (in *Intake) Accept(ctx context.Context, u Upload) (*document.Asset, error) {
	log := logger.FromContext(ctx, in.logger)
	asset, err := in.accept(u)
	if err != nil {
		outcome := string(apperr.KindOf(err))
		metrics.RecordUpload(outcome)
		log.Warn("upload_rejected", slog.String("file_name", u.FileName), slog.String("error", err.Error()))
		return nil, err
	}
	metrics.RecordUpload("accepted")
	log.Info("upload_accepted",
		slog.String("pdf_id", asset.ID),
		slog.Int64("size_bytes", asset.SizeBytes))
	return asset, nil
}

func (in *Intake) accept(u Upload) (*document.Asset, error) {
	if !strings.EqualFold(filepath.Ext(u.FileName), ".pdf") {
		return nil, ErrUnsupportedType
	}
	if u.Size > in.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, u.Size, in.maxBytes)
	}
	if u.Body == nil {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidSignature)
	}

	data, err := io.ReadAll(io.LimitReader(u.Body, in.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", apperr.ErrInternal, err)
	}
	if int64(len(data)) > in.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, in.maxBytes)
	}
	if !bytes.HasPrefix(data, Signature) {
		return nil, ErrInvalidSignature
	}

	safe := SanitizeFileName(u.FileName)
	id, path, f, err := in.create(safe)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: writing %s: %v", apperr.ErrInternal, id, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: closing %s: %v", apperr.ErrInternal, id, err)
	}

	return &document.Asset{
		ID:                id,
		OriginalFileName:  u.FileName,
		SanitizedFileName: safe,
		StoragePath:       path,
		SizeBytes:         int64(len(data)),
		UploadedAt:        in.now().UTC(),
		SourceURL:         u.SourceURL,
	}, nil
}

// create reserves a new {millis}_{name}.pdf file, bumping the timestamp on
// collision.
func (in *Intake) create(safe string) (string, string, *os.File, error) {
	stamp := in.now().UnixMilli()
	for attempt := 0; attempt < 100; attempt++ {
		id := fmt.Sprintf("%d_%s", stamp+int64(attempt), safe)
		path, err := in.Resolve(id)
		if err != nil {
			return "", "", nil, err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", nil, fmt.Errorf("%w: creating %s: %v", apperr.ErrInternal, id, err)
		}
		return id, path, f, nil
	}
	return "", "", nil, fmt.Errorf("%w: could not reserve a file name for %s", apperr.ErrInternal, safe)
}

// Resolve returns the storage path for asset id, failing if it would land
// outside the root.
func (in *Intake) Resolve(id string) (string, error) {
	path := filepath.Join(in.root, id+".pdf")
	rel, err := filepath.Rel(in.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) ||
		strings.ContainsRune(rel, filepath.Separator) {
		return "", ErrPathEscape
	}
	return path, nil
}

var (
	disallowed  = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	underscores = regexp.MustCompile(`_{2,}`)
	dots        = regexp.MustCompile(`\.{2,}`)
)

// SanitizeFileName reduces name to a safe storage stem: separators are
// removed, parent-directory sequences collapsed, characters restricted to
// [A-Za-z0-9._-], and a trailing .pdf stripped. The result is never empty
// and SanitizeFileName(SanitizeFileName(x)) == SanitizeFileName(x).
func SanitizeFileName(name string) string {
	s := name
	for {
		next := sanitizeStep(s)
		if next == s {
			break
		}
		s = next
	}
	if s == "" {
		return PlaceholderName
	}
	return s
}

func sanitizeStep(s string) string {
	s = strings.NewReplacer("/", "", "\\", "").Replace(s)
	s = disallowed.ReplaceAllString(s, "_")
	s = dots.ReplaceAllString(s, ".")
	s = underscores.ReplaceAllString(s, "_")
	if len(s) >= 4 && strings.EqualFold(s[len(s)-4:], ".pdf") {
		s = s[:len(s)-4]
	}
	s = strings.Trim(s, "._-")
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	return s
}
