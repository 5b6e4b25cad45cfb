package images

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"strings"

	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

var (
	// ErrEmpty is returned for a missing payload.
	ErrEmpty = errors.New("signature image is empty")
	// ErrTooLarge is returned when a payload exceeds the configured limit.
	ErrTooLarge = errors.New("signature image is too large")
	// ErrUnsupported is returned for payloads that do not decode as PNG, JPEG or WebP.
	ErrUnsupported = errors.New("signature image must be PNG, JPEG or WebP")
)

// maxDimension rejects absurd canvases before full decode.
const maxDimension = 4096

// Processed is a validated signature image ready to store.
type Processed struct {
	Data     []byte
	Format   string // png, jpeg or webp
	Digest   string // hex blake2b-256 of Data
	Blurhash string
	Width    int
	Height   int
}

// Extension returns the file extension for the image format.
func (p *Processed) Extension() string {
	if p.Format == "jpeg" {
		return ".jpg"
	}
	return "." + p.Format
}

// Processor validates signature images.
type Processor struct {
	maxBytes int
	logger   *slog.Logger
}

// NewProcessor creates a Processor that rejects payloads over maxBytes.
func NewProcessor(maxBytes int, logger *slog.Logger) *Processor {
	return &Processor{maxBytes: maxBytes, logger: logger}
}

// Process decodes data, checks its format and size, and computes its
// digest and blurhash. The payload itself is kept byte for byte.
func (p *Processor) Process(data []byte) (*Processed, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if p.maxBytes > 0 && len(data) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), p.maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || !supportedFormat(format) {
		return nil, ErrUnsupported
	}
	if cfg.Width == 0 || cfg.Height == 0 || cfg.Width > maxDimension || cfg.Height > maxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupported, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	hash, err := placeholderHash(img)
	if err != nil {
		// The placeholder is cosmetic.
		p.logger.Warn("failed to compute signature blurhash", "error", err)
		hash = ""
	}

	return &Processed{
		Data:     data,
		Format:   format,
		Digest:   Digest(data),
		Blurhash: hash,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// Digest returns the hex blake2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentType maps a stored ref's extension to a MIME type.
func ContentType(ref string) string {
	switch {
	case strings.HasSuffix(ref, ".png"):
		return "image/png"
	case strings.HasSuffix(ref, ".jpg"), strings.HasSuffix(ref, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(ref, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func supportedFormat(format string) bool {
	switch format {
	case "png", "jpeg", "webp":
		return true
	}
	return false
}
