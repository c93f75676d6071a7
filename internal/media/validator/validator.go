// Package validator admits or rejects uploaded profile pictures. It decodes
// the actual byte content rather than trusting the declared content type, and
// cross-checks the file extension against the decoded format to defend
// against spoofed extensions.
package validator

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"

	// FormatUnverified marks metadata produced with strict validation
	// switched off.
	FormatUnverified Format = "unverified"
)

// Metadata describes an admitted image. Produced once per validation call,
// never persisted.
type Metadata struct {
	Format    Format
	Width     int
	Height    int
	ColorMode string
}

// Error is a recoverable rejection with a client-facing reason.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

var formatExtensions = map[Format][]string{
	FormatJPEG: {".jpg", ".jpeg"},
	FormatPNG:  {".png"},
	FormatGIF:  {".gif"},
}

// AllowedExtensions returns the accepted file extensions, in a stable order.
func AllowedExtensions() []string {
	out := make([]string, len(allowedExtensions))
	copy(out, allowedExtensions)
	return out
}

func AllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

type Validator struct {
	// Strict toggles full content inspection. Injected at construction,
	// never read from the environment.
	Strict       bool
	MinDimension int
	MaxDimension int
}

func New(strict bool, minDimension, maxDimension int) *Validator {
	return &Validator{
		Strict:       strict,
		MinDimension: minDimension,
		MaxDimension: maxDimension,
	}
}

// Validate runs the admission checks against the upload stream. The stream
// cursor is restored to the start on every exit path, success or rejection,
// so downstream consumers always see the full payload.
func (v *Validator) Validate(r io.Reader, filename, contentType string) (meta Metadata, err error) {
	if seeker, ok := r.(io.Seeker); ok {
		defer func() {
			if _, serr := seeker.Seek(0, io.SeekStart); serr != nil && err == nil {
				meta = Metadata{}
				err = fmt.Errorf("rewind upload stream: %w", serr)
			}
		}()
	}

	if filename == "" {
		return Metadata{}, &Error{Reason: "missing filename"}
	}
	if contentType == "" {
		return Metadata{}, &Error{Reason: "missing content type"}
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Metadata{}, &Error{Reason: fmt.Sprintf("invalid content type: %s, expected an image format", contentType)}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !AllowedExtension(ext) {
		return Metadata{}, &Error{Reason: fmt.Sprintf("invalid file extension: %s, allowed extensions are: %s", ext, strings.Join(allowedExtensions, ", "))}
	}

	if !v.Strict {
		return Metadata{Format: FormatUnverified, Width: 100, Height: 100, ColorMode: "RGB"}, nil
	}

	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return Metadata{}, fmt.Errorf("rewind upload stream: %w", err)
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("read upload stream: %w", err)
	}

	img, formatName, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, &Error{Reason: "the file is not a valid image"}
	}

	format := Format(formatName)
	exts, ok := formatExtensions[format]
	if !ok {
		return Metadata{}, &Error{Reason: fmt.Sprintf("unsupported image format: %s", formatName)}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > v.MaxDimension || height > v.MaxDimension {
		return Metadata{}, &Error{Reason: fmt.Sprintf("image dimensions too large, maximum allowed: %dx%d pixels", v.MaxDimension, v.MaxDimension)}
	}
	if width < v.MinDimension || height < v.MinDimension {
		return Metadata{}, &Error{Reason: fmt.Sprintf("image dimensions too small, minimum allowed: %dx%d pixels", v.MinDimension, v.MinDimension)}
	}

	if !extensionMatches(exts, ext) {
		return Metadata{}, &Error{Reason: fmt.Sprintf("file extension %s does not match the actual image format %s", ext, formatName)}
	}

	return Metadata{
		Format:    format,
		Width:     width,
		Height:    height,
		ColorMode: colorMode(img),
	}, nil
}

func extensionMatches(exts []string, ext string) bool {
	for _, candidate := range exts {
		if ext == candidate {
			return true
		}
	}
	return false
}

func colorMode(img image.Image) string {
	switch img.(type) {
	case *image.YCbCr:
		return "YCbCr"
	case *image.RGBA:
		return "RGBA"
	case *image.NRGBA:
		return "NRGBA"
	case *image.Gray:
		return "Gray"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	default:
		return "unknown"
	}
}
