// Package diff renders the difference between a baseline and the current
// content of one file for human review.
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"mcpguard/internal/content"

	"github.com/aymanbagabas/go-udiff"
)

// Prefixes used for the unified diff file labels.
const (
	BaselineLabel = "baseline/"
	CurrentLabel  = "current/"
)

// Binary formats the summary shown when either side is not text.
func Binary(baselineSize, currentSize int) string {
	return fmt.Sprintf("binary content changed (%d bytes → %d bytes)", baselineSize, currentSize)
}

// Diff returns a unified diff of baseline against current, labelled with name.
// Equal inputs produce "". Non-text input produces the Binary summary.
// The output contains no timestamps and depends only on its arguments.
func Diff(name string, baseline, current []byte) string {
	if bytes.Equal(baseline, current) {
		return ""
	}

	oldText, oldOK := content.Decode(baseline)
	newText, newOK := content.Decode(current)
	if !oldOK || !newOK {
		return Binary(len(baseline), len(current))
	}

	var notes []string
	if len(baseline) > 0 && len(current) > 0 && oldText.Encoding != newText.Encoding {
		notes = append(notes, fmt.Sprintf("encoding changed: %s → %s", oldText.Encoding, newText.Encoding))
	}
	oldEOL, newEOL := lineEndings(oldText.Body), lineEndings(newText.Body)
	if oldEOL != newEOL && oldEOL != eolNone && newEOL != eolNone {
		notes = append(notes, fmt.Sprintf("line endings changed: %s → %s", oldEOL, newEOL))
	}

	unified := udiff.Unified(BaselineLabel+name, CurrentLabel+name, normalize(oldText.Body), normalize(newText.Body))
	if unified == "" && len(notes) == 0 {
		notes = append(notes, "content differs only in line endings")
	}

	var b strings.Builder
	for _, n := range notes {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	b.WriteString(unified)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

const (
	eolNone  = "none"
	eolLF    = "LF"
	eolCRLF  = "CRLF"
	eolMixed = "mixed"
)

func lineEndings(s string) string {
	crlf := strings.Count(s, "\r\n")
	lf := strings.Count(s, "\n") - crlf
	switch {
	case crlf == 0 && lf == 0:
		return eolNone
	case crlf == 0:
		return eolLF
	case lf == 0:
		return eolCRLF
	default:
		return eolMixed
	}
}

func normalize(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
