package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Header    *color.Color
	Name      *color.Color
	Success   *color.Color
	Error     *color.Color
	Highlight *color.Color
	Dim       *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:    color.New(color.FgCyan, color.Bold),
		Name:      color.New(color.FgBlue),
		Success:   color.New(color.FgGreen),
		Error:     color.New(color.FgRed, color.Bold),
		Highlight: color.New(color.FgMagenta, color.Bold),
		Dim:       color.New(color.Faint),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()

	scheme.Header.DisableColor()
	scheme.Name.DisableColor()
	scheme.Success.DisableColor()
	scheme.Error.DisableColor()
	scheme.Highlight.DisableColor()
	scheme.Dim.DisableColor()

	return scheme
}

// forceColors turns every color of the scheme on regardless of the global
// color.NoColor detection.
func (s *ColorScheme) forceColors() *ColorScheme {
	s.Header.EnableColor()
	s.Name.EnableColor()
	s.Success.EnableColor()
	s.Error.EnableColor()
	s.Highlight.EnableColor()
	s.Dim.EnableColor()
	return s
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}
