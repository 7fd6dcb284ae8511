package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"ai-labeller/pkg/colorutil"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// printer writes command results. Text output is styled only when w is a
// terminal.
type printer struct {
	w      io.Writer
	format string
	r      *lipgloss.Renderer

	header lipgloss.Style
	key    lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
}

func newPrinter(w io.Writer, format string) *printer {
	p := &printer{w: w, format: format}
	f, isFile := w.(*os.File)
	if !isFile || !term.IsTerminal(int(f.Fd())) {
		return p
	}
	r := lipgloss.NewRenderer(w)
	p.r = r
	p.header = r.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	p.key = r.NewStyle().Foreground(lipgloss.Color("8"))
	p.ok = r.NewStyle().Foreground(lipgloss.Color("10"))
	p.warn = r.NewStyle().Foreground(lipgloss.Color("11"))
	p.muted = r.NewStyle().Foreground(lipgloss.Color("7"))
	return p
}

// structured writes v as JSON or YAML when a structured format was requested.
// It reports false for text output.
func (p *printer) structured(v interface{}) (bool, error) {
	switch p.format {
	case outputJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (p *printer) title(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.header.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) field(key string, value interface{}) {
	fmt.Fprintf(p.w, "%s %v\n", p.key.Render(fmt.Sprintf("%-10s", key+":")), value)
}

func (p *printer) success(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.ok.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) warning(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.warn.Render(fmt.Sprintf(format, args...)))
}

// class renders a class name in the class's display color.
func (p *printer) class(id int, name string) string {
	if p.r == nil {
		return name
	}
	c := colorutil.Hex(colorutil.ClassColor(id))
	return p.r.NewStyle().Foreground(lipgloss.Color(c)).Render(name)
}

func (p *printer) line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// table writes rows with left-aligned columns sized to their widest cell.
func (p *printer) table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	format := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], c)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(p.w, p.header.Render(format(headers)))
	for _, row := range rows {
		fmt.Fprintln(p.w, format(row))
	}
}
