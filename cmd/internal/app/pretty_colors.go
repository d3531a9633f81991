package app

import (
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// Width policy for pretty output. Values below prettyMinWidth would wrap
// every line and are treated as misconfiguration.
const (
	prettyMinWidth     = 60
	prettyDefaultWidth = 100
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }

// visualLen is the printable width of s, ignoring ANSI escapes.
func visualLen(s string) int {
	return len([]rune(stripANSI(s)))
}

// terminalWidth resolves the wrap width: APSEQ_LOG_WIDTH wins, then COLUMNS,
// then the default.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"APSEQ_LOG_WIDTH", "COLUMNS"} {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n >= prettyMinWidth {
			return n
		}
	}
	return prettyDefaultWidth
}

// wrapSegments packs segments into lines no wider than width (visually).
// Continuation lines start with contIndent. A single segment that cannot fit
// is truncated with an ellipsis rather than overflowing.
func wrapSegments(segments []string, sep string, width int, contIndent string) []string {
	if width <= 0 {
		width = prettyDefaultWidth
	}

	var lines []string
	cur := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if cur == "" {
			cur = seg
		} else if candidate := cur + sep + seg; visualLen(candidate) <= width {
			cur = candidate
			continue
		} else {
			lines = append(lines, cur)
			cur = contIndent + seg
		}
		if visualLen(cur) > width {
			cur = truncateVisual(cur, width)
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// truncateVisual cuts s to width runes, ending with an ellipsis. Escapes are
// stripped first so a cut never leaves a dangling ANSI sequence.
func truncateVisual(s string, width int) string {
	if width <= 1 {
		return "…"
	}
	plain := []rune(stripANSI(s))
	if len(plain) <= width {
		return string(plain)
	}
	return string(plain[:width-1]) + "…"
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	default:
		return 0, false
	}
}

func colorizeHTTPMethod(method string, color bool) string {
	if !color {
		return method
	}
	switch method {
	case "GET":
		return ansiBlue + method + ansiReset
	case "POST":
		return ansiGreen + method + ansiReset
	case "PUT", "PATCH":
		return ansiYellow + method + ansiReset
	case "DELETE":
		return ansiRed + method + ansiReset
	default:
		return method
	}
}

func colorizeStatusCode(code int, color bool) string {
	s := strconv.Itoa(code)
	if !color {
		return s
	}
	switch {
	case code >= 500:
		return ansiRed + s + ansiReset
	case code >= 400:
		return ansiYellow + s + ansiReset
	case code >= 300:
		return ansiCyan + s + ansiReset
	default:
		return ansiGreen + s + ansiReset
	}
}

func colorizeStatusClass(class string, color bool) string {
	if !color || class == "" {
		return class
	}
	switch class[0] {
	case '5':
		return ansiRed + class + ansiReset
	case '4':
		return ansiYellow + class + ansiReset
	case '3':
		return ansiCyan + class + ansiReset
	default:
		return ansiGreen + class + ansiReset
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	if !color {
		return s
	}
	switch {
	case ms >= 1000:
		return ansiRed + s + ansiReset
	case ms >= 100:
		return ansiYellow + s + ansiReset
	default:
		return ansiGreen + s + ansiReset
	}
}

func colorizeResult(result string, color bool) string {
	if !color {
		return result
	}
	switch result {
	case "ok", "success":
		return ansiGreen + result + ansiReset
	case "fail", "error", "denied":
		return ansiRed + result + ansiReset
	default:
		return result
	}
}
