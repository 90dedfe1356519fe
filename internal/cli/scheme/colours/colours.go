package colours

import (
	"io"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// Role is a named slot in the palette. Apply swaps the colour behind every
// role atomically, so printing from other goroutines stays safe.
type Role struct {
	dark, light *color.Color
	current     atomic.Pointer[color.Color]
}

func newRole(dark, light *color.Color) *Role {
	r := &Role{dark: dark, light: light}
	r.current.Store(dark)
	return r
}

// Color returns the colour currently in use for the role.
func (r *Role) Color() *color.Color { return r.current.Load() }

func (r *Role) Fprint(w io.Writer, a ...any) (int, error) {
	return r.Color().Fprint(w, a...)
}

func (r *Role) Fprintln(w io.Writer, a ...any) (int, error) {
	return r.Color().Fprintln(w, a...)
}

func (r *Role) Fprintf(w io.Writer, format string, a ...any) (int, error) {
	return r.Color().Fprintf(w, format, a...)
}

func (r *Role) Printf(format string, a ...any) (int, error) {
	return r.Color().Printf(format, a...)
}

func (r *Role) Sprint(a ...any) string {
	return r.Color().Sprint(a...)
}

// Color scheme for the CLI
var (
	Title    = newRole(color.New(color.FgHiCyan, color.Bold), color.New(color.FgBlue, color.Bold))
	Story    = newRole(color.New(color.FgHiWhite), color.New(color.FgBlack))
	Caption  = newRole(color.New(color.FgHiMagenta, color.Italic), color.New(color.FgMagenta, color.Italic))
	Prompt   = newRole(color.New(color.FgHiGreen, color.Bold), color.New(color.FgGreen, color.Bold))
	Error    = newRole(color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold))
	Success  = newRole(color.New(color.FgGreen), color.New(color.FgGreen))
	Info     = newRole(color.New(color.FgHiBlue), color.New(color.FgBlue))
	Warning  = newRole(color.New(color.FgHiYellow), color.New(color.FgRed))
	Progress = newRole(color.New(color.FgHiCyan), color.New(color.FgBlue))
)

var roles = []*Role{Title, Story, Caption, Prompt, Error, Success, Info, Warning, Progress}

// Apply switches the palette between its dark and light variants.
func Apply(dark bool) {
	for _, r := range roles {
		if dark {
			r.current.Store(r.dark)
		} else {
			r.current.Store(r.light)
		}
	}
}

// DetectDark reports whether the terminal has a dark background
func DetectDark() bool {
	return lipgloss.HasDarkBackground()
}
