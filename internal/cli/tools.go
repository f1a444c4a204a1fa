package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/local/pdftools/internal/pages"
	"github.com/local/pdftools/internal/tools"
)

// toolCommand describes one tool subcommand and the request parameters it
// exposes as flags.
type toolCommand struct {
	tool   string
	short  string
	args   cobra.PositionalArgs
	params []paramFlag
}

type paramFlag struct {
	name  string
	usage string
}

var toolCommands = []toolCommand{
	{tools.ToolSplit, "Keep a contiguous page range", cobra.ExactArgs(1), []paramFlag{
		{"start", "First page to keep (1-based)"},
		{"end", "Last page to keep (defaults to the last page)"},
	}},
	{tools.ToolDivide, "Write every page as its own PDF inside a ZIP", cobra.ExactArgs(1), nil},
	{tools.ToolDelete, "Delete pages, e.g. --pages \"1,3,5-7\"", cobra.ExactArgs(1), []paramFlag{
		{"pages", "Pages to delete"},
	}},
	{tools.ToolExtract, "Extract pages into a new PDF", cobra.ExactArgs(1), []paramFlag{
		{"pages", "Pages to extract"},
	}},
	{tools.ToolMerge, "Merge PDFs in the given order", cobra.MinimumNArgs(1), nil},
	{tools.ToolSuperMerge, "Merge PDFs and images in the given order", cobra.MinimumNArgs(1), nil},
	{tools.ToolImagesToPDF, "One page per PNG/JPEG/WEBP image", cobra.MinimumNArgs(1), nil},
	{tools.ToolZipToPDF, "One page per image found in a ZIP archive", cobra.ExactArgs(1), nil},
	{tools.ToolCompress, "Rewrite a PDF with optimised object streams", cobra.ExactArgs(1), nil},
	{tools.ToolProtect, "Encrypt a PDF with a user password", cobra.ExactArgs(1), []paramFlag{
		{"password", "Password to open the document"},
		{"confirm", "Repeat the password"},
	}},
	{tools.ToolPDFToPNG, "Render every page to PNG inside a ZIP", cobra.ExactArgs(1), []paramFlag{
		{"dpi", "Render resolution (1-600)"},
	}},
}

func (a *App) newToolCmd(spec toolCommand) *cobra.Command {
	var (
		out    string
		dir    string
		params = make(map[string]*string, len(spec.params))
	)
	cmd := &cobra.Command{
		Use:   spec.tool + " FILE...",
		Short: spec.short,
		Args:  spec.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := tools.Request{Tool: spec.tool, Params: map[string]string{}}
			for name, v := range params {
				if cmd.Flags().Changed(name) {
					req.Params[name] = *v
				}
			}
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("read %s: %w", p, err)
				}
				req.Files = append(req.Files, tools.File{Name: filepath.Base(p), Data: data})
			}

			res, err := a.runner().Run(cmd.Context(), req)
			if err != nil {
				return errors.New(tools.UserMessage(err))
			}

			target := out
			if target == "" {
				target = filepath.Join(dir, res.Filename)
			}
			if err := os.WriteFile(target, res.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(a.stdout, "%s -> %s (%s)\n", res.Message, target, tools.FormatSize(int64(len(res.Data))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to the tool's file name in --dir)")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Output directory")
	for _, p := range spec.params {
		params[p.name] = cmd.Flags().String(p.name, "", p.usage)
	}
	return cmd
}

// newPagesCmd previews which pages a specification selects.
func (a *App) newPagesCmd() *cobra.Command {
	var (
		total       int
		afterDelete bool
	)
	cmd := &cobra.Command{
		Use:   "pages SPEC",
		Short: "Show the pages a specification selects for a document size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if total < 1 {
				return fmt.Errorf("--total must be at least 1")
			}
			list := pages.Parse(args[0]).Resolve(total).Sorted()
			if afterDelete {
				list = pages.ResolvePagesToKeep(args[0], total)
				fmt.Fprintf(a.stdout, "keep: %s\n", joinInts(list))
				return nil
			}
			fmt.Fprintf(a.stdout, "selected: %s\n", joinInts(list))
			return nil
		},
	}
	cmd.Flags().IntVarP(&total, "total", "n", 0, "Number of pages in the document")
	cmd.Flags().BoolVar(&afterDelete, "delete", false, "Show the pages kept after deleting SPEC")
	return cmd
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "(none)"
	}
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, ",")
}
