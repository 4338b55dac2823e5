package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Exit codes returned by intakectl.
const (
	ExitSuccess      = 0
	ExitGeneral      = 1
	ExitValidation   = 2
	ExitUnauthorized = 3
	ExitTransport    = 4
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	f, ok := domain.AsFailure(err)
	if !ok {
		return ExitGeneral
	}
	switch f.Kind {
	case domain.KindValidation, domain.KindBusy:
		return ExitValidation
	case domain.KindUnauthorized:
		return ExitUnauthorized
	case domain.KindTransport:
		return ExitTransport
	default:
		return ExitGeneral
	}
}

// Printer writes operator-facing output.
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

// NewPrinter creates a printer. Colors are dropped when NO_COLOR is set or
// the terminal is dumb.
func NewPrinter(out, errOut io.Writer, useColors bool) *Printer {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || os.Getenv("TERM") == "dumb" {
		useColors = false
	}
	return &Printer{out: out, err: errOut, useColors: useColors}
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...interface{}) {
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
}

// Print prints a plain line.
func (p *Printer) Print(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Warning prints to stderr.
func (p *Printer) Warning(format string, args ...interface{}) {
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[WARN] "+format+"\n", args...)
}

// FormatError prints a failed command. Backend field errors get one line each.
func (p *Printer) FormatError(err error) {
	var f *domain.Failure
	if !errors.As(err, &f) {
		p.errorLine(err.Error())
		return
	}
	p.errorLine(f.Message)
	for _, fe := range f.Fields {
		fmt.Fprintf(p.err, "  %s: %s\n", fe.Field, fe.Message)
	}
	if f.Kind == domain.KindUnauthorized {
		p.hint("Run 'intakectl login' to start a new session")
	}
}

func (p *Printer) errorLine(msg string) {
	if p.useColors {
		color.New(color.FgRed, color.Bold).Fprintf(p.err, "Error: %s\n", msg)
		return
	}
	fmt.Fprintf(p.err, "[ERROR] %s\n", msg)
}

func (p *Printer) hint(msg string) {
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.err, "  %s\n", msg)
		return
	}
	fmt.Fprintf(p.err, "  %s\n", msg)
}

// Badge renders the backend online indicator.
func (p *Printer) Badge(online bool) string {
	label := "offline"
	if online {
		label = "online"
	}
	if !p.useColors {
		return "[" + label + "]"
	}
	if online {
		return color.GreenString("● " + label)
	}
	return color.RedString("● " + label)
}

// Bold returns text in bold.
func (p *Printer) Bold(text string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(text)
	}
	return text
}

// Table prints rows under headers without borders.
func (p *Printer) Table(headers []string, rows [][]string) error {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
