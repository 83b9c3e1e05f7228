// Package color provides terminal styling for modelstore output.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var state struct {
	mu          sync.RWMutex
	initialized bool
	enabled     bool
}

// Init initializes the color system based on environment and flags.
// Only the first call inspects the environment.
func Init(noColorFlag bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.initialized {
		if noColorFlag {
			state.enabled = false
		}
		return
	}
	state.initialized = true
	state.enabled = true
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		state.enabled = false
	}
	if os.Getenv("TERM") == "dumb" {
		state.enabled = false
	}
	if noColorFlag {
		state.enabled = false
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.enabled
}

// Disable turns off color output.
func Disable() {
	Init(false)
	state.mu.Lock()
	state.enabled = false
	state.mu.Unlock()
}

// Enable turns on color output.
func Enable() {
	Init(false)
	state.mu.Lock()
	state.enabled = true
	state.mu.Unlock()
}

// Terminal palette, shared with the light and dark themes.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "6", Dark: "6"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "4", Dark: "4"}
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleCode    = lipgloss.NewStyle().Bold(true).Faint(true)
)

func render(style lipgloss.Style, s string) string {
	if !Enabled() {
		return s
	}
	return style.Render(s)
}

// Success formats a success message in green.
func Success(s string) string {
	return render(styleSuccess, s)
}

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string {
	return Success(fmt.Sprintf(format, args...))
}

// Error formats an error message in red.
func Error(s string) string {
	return render(styleError, s)
}

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string {
	return Error(fmt.Sprintf(format, args...))
}

// Warning formats a warning message in yellow.
func Warning(s string) string {
	return render(styleWarning, s)
}

// Warningf formats a warning message with printf-style arguments.
func Warningf(format string, args ...any) string {
	return Warning(fmt.Sprintf(format, args...))
}

// Info formats an informational message in cyan.
func Info(s string) string {
	return render(styleInfo, s)
}

// ModelName formats a model identifier.
func ModelName(s string) string {
	return render(styleAccent, s)
}

// Holder formats a lease holder. Corrupted records are shown as errors.
func Holder(s string) string {
	switch s {
	case "":
		return Dim("-")
	case "CORRUPTED":
		return Error(s)
	default:
		return Warning(s)
	}
}

// Header formats a header in bold.
func Header(s string) string {
	return render(styleHeader, s)
}

// Dim formats dimmed text (for secondary information).
func Dim(s string) string {
	return render(styleMuted, s)
}

// Code formats code/command strings in a distinct style.
func Code(s string) string {
	return render(styleCode, s)
}

// Table renders rows under headers with columns padded to the widest cell.
// Cells may already carry styling; widths ignore escape sequences.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var b strings.Builder
	line := func(cells []string, style func(string) string) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style(cell) + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteString("\n")
	}
	line(headers, Header)
	for _, row := range rows {
		line(row, func(s string) string { return s })
	}
	return b.String()
}
