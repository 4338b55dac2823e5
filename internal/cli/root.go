// Package cli implements intakectl, the terminal client for the intake
// workflow. It drives the same App the console server does.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashureev/careportal/internal/app"
	"github.com/ashureev/careportal/internal/config"
	"github.com/spf13/cobra"
)

// CLI holds one intakectl invocation.
type CLI struct {
	root    *cobra.Command
	out     io.Writer
	errOut  io.Writer
	in      io.Reader
	reader  *bufio.Reader
	printer *Printer
	logger  *slog.Logger

	loadConfig func() (*config.Config, error)
	app        *app.App

	verbose    bool
	noColor    bool
	dbPath     string
	backendURL string
}

// Option configures a CLI.
type Option func(*CLI)

// WithIO replaces stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(c *CLI) {
		c.in = in
		c.out = out
		c.errOut = errOut
	}
}

// WithConfig replaces environment-based configuration.
func WithConfig(load func() (*config.Config, error)) Option {
	return func(c *CLI) { c.loadConfig = load }
}

// New builds the command tree.
func New(version string, opts ...Option) *CLI {
	c := &CLI{
		out:        os.Stdout,
		errOut:     os.Stderr,
		in:         os.Stdin,
		loadConfig: config.Load,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.root = &cobra.Command{
		Use:   "intakectl",
		Short: "Care service agreement intake from the terminal",
		Long: `intakectl signs in to the care portal backend, lists agreements,
downloads their PDFs and submits new ones.

The session is kept in the local client database and survives restarts.

Example usage:
  intakectl login --user staff@example.com
  intakectl agreements list
  intakectl agreements pdf 12 -o ./out
  intakectl agreements submit --from draft.json --signature sig.png`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	c.root.SetOut(c.out)
	c.root.SetErr(c.errOut)
	c.root.SetIn(c.in)

	flags := c.root.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&c.dbPath, "db", "", "client state database (default: DB_PATH)")
	flags.StringVar(&c.backendURL, "backend", "", "backend base URL (default: BACKEND_URL)")

	c.root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.signupCommand(),
		c.forgotPasswordCommand(),
		c.resetPasswordCommand(),
		c.agreementsCommand(),
		c.branchesCommand(),
		c.healthCommand(),
	)
	return c
}

// Execute runs the command line and releases client state afterwards.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(ctx)
	if c.app != nil {
		if closeErr := c.app.Close(); closeErr != nil {
			c.logger.Warn("Failed to close client state", "error", closeErr)
		}
		c.app = nil
	}
	return err
}

// Printer returns the printer the commands write through.
func (c *CLI) Printer() *Printer {
	if c.printer == nil {
		c.printer = NewPrinter(c.out, c.errOut, !c.noColor)
	}
	return c.printer
}

func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
	c.printer = NewPrinter(c.out, c.errOut, !c.noColor)

	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	if c.backendURL != "" {
		cfg.BackendURL = c.backendURL
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	c.logger.Debug("configuration loaded", "backend", cfg.BackendURL, "db", cfg.DBPath)

	a, err := app.New(cmd.Context(), cfg, c.logger)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}
