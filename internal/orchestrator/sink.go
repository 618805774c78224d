package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/renameio/v2"
	"golang.org/x/text/unicode/norm"

	xglog "github.com/ManuGH/xgrab/internal/log"
)

const maxNameBytes = 200

// Sink receives the ordered segment bodies of a finished transfer and
// concatenates them into one output. It returns where the output landed.
type Sink interface {
	Write(ctx context.Context, name string, parts [][]byte) (string, error)
}

// FileSink writes outputs into Dir. Outputs appear atomically or not at all.
type FileSink struct {
	Dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{Dir: dir}, nil
}

// Write concatenates parts into Dir/name. Cancellation between parts
// discards the pending file.
func (s *FileSink) Write(ctx context.Context, name string, parts [][]byte) (string, error) {
	logger := xglog.FromContext(ctx)
	path := filepath.Join(s.Dir, name)

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending output file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending output file")
		}
	}()

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := pendingFile.Write(part); err != nil {
			return "", fmt.Errorf("write output data: %w", err)
		}
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace output file: %w", err)
	}
	return path, nil
}

// DefaultOutputName names an output when the caller gave none.
func DefaultOutputName(now time.Time) string {
	return fmt.Sprintf("video_m3u8_%d.ts", now.UnixMilli())
}

// SanitizeName NFC-normalises name and strips anything that could escape the
// output directory. It returns "" when nothing usable is left.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)
	name = strings.Trim(name, " .")
	for len(name) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

