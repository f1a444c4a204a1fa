// Package cli provides the pdftools command line, one subcommand per tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/logger"
	"github.com/local/pdftools/internal/tools"
)

// Version information set at build time.
var Version = "dev"

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	logLevel string
	dpi      int
	color    string
}

// New creates a new CLI application.
func New() *App {
	cfg := config.Load()
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "pdftools",
		Short: "Split, merge, compress and convert PDF files locally",
		Long: `pdftools runs the PDF tools on local files: split, divide, delete and extract
pages, merge PDFs and images, build PDFs from images or ZIP archives, compress,
password-protect and render pages to PNG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Options{Service: "pdftools-cli", Level: app.logLevel, Pretty: true, Console: app.stderr})
		},
	}
	app.root.PersistentFlags().StringVar(&app.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	app.root.PersistentFlags().IntVar(&app.dpi, "render-dpi", cfg.Render.DPI, "Default DPI for pdf-to-png")
	app.root.PersistentFlags().StringVar(&app.color, "render-color", cfg.Render.ColorMode, "Colour mode for pdf-to-png (rgb, gray)")

	app.root.AddCommand(app.newVersionCmd(), app.newPagesCmd())
	for _, spec := range toolCommands {
		app.root.AddCommand(app.newToolCmd(spec))
	}
	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

func (a *App) runner() *tools.Runner {
	return tools.NewRunner(tools.Options{Render: imagerender.Options{
		DPI:   a.dpi,
		Color: imagerender.ColorMode(strings.ToLower(a.color)),
	}})
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.stdout, "pdftools %s\n", Version)
			return err
		},
	}
}
