// Package content reads tracked files from disk and decodes them for display.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"

	"mcpguard/internal/logging"

	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrMissing means the path does not exist. A zero-length file is not missing.
	ErrMissing = errors.New("file does not exist")
	// ErrUnreadable covers permission, I/O and size-limit failures.
	ErrUnreadable = errors.New("file is unreadable")
)

// Reader reads current on-disk bytes for tracked paths.
type Reader struct {
	maxSize int64
	logger  *logging.AppLogger
}

// NewReader returns a Reader that refuses files larger than maxSize bytes.
// A non-positive maxSize disables the limit.
func NewReader(maxSize int64, logger *logging.AppLogger) *Reader {
	return &Reader{maxSize: maxSize, logger: logging.OrDefault(logger)}
}

// Read returns the full content of path. Errors wrap ErrMissing or ErrUnreadable.
func (r *Reader) Read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	if r.maxSize > 0 && info.Size() > r.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrUnreadable, path, info.Size(), r.maxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	var src io.Reader = f
	if r.maxSize > 0 {
		// The file may grow between Stat and Read
		src = io.LimitReader(f, r.maxSize+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if r.maxSize > 0 && int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnreadable, path, r.maxSize)
	}

	r.logger.Debug("Read tracked file", "path", path, "bytes", len(data))
	return data, nil
}

// Encodings reported by Decode.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8 with BOM"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Text is decoded file content.
type Text struct {
	Body     string
	Encoding string
}

// Decode interprets data as text. UTF-8 (with or without BOM) and UTF-16 with
// a BOM are accepted; anything else, including UTF-8 containing NUL bytes, is
// reported as binary with ok == false.
func Decode(data []byte) (Text, bool) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		body := data[len(bomUTF8):]
		if !isPlainText(body) {
			return Text{}, false
		}
		return Text{Body: string(body), Encoding: EncodingUTF8BOM}, true

	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		if len(data)%2 != 0 {
			return Text{}, false
		}
		enc := EncodingUTF16LE
		if bytes.HasPrefix(data, bomUTF16BE) {
			enc = EncodingUTF16BE
		}
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
		if err != nil || !isPlainText(decoded) {
			return Text{}, false
		}
		return Text{Body: string(decoded), Encoding: enc}, true
	}

	if !isPlainText(data) {
		return Text{}, false
	}
	return Text{Body: string(data), Encoding: EncodingUTF8}, true
}

func isPlainText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}
