package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// reportCmd renders a session or rollback report from .polish-reports/ as
// formatted terminal output, grounded in the teacher's use of glamour for
// rendering campaign intelligence summaries.
var reportCmd = &cobra.Command{
	Use:   "report [file]",
	Short: "Render a session or rollback report",
	Long: `report renders one of the markdown reports written by a pipeline run
under memory/.polish-reports/. Pass a bare filename to render a specific
report, or omit it to render the most recently written one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndApplyOverrides(flagWorkspace)
		if err != nil {
			return err
		}
		deps, err := buildDeps(flagWorkspace, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		var path string
		if len(args) == 1 {
			path = args[0]
			if !filepath.IsAbs(path) {
				path = filepath.Join(deps.ReportsDir, path)
			}
		} else {
			path, err = latestReport(deps.ReportsDir)
			if err != nil {
				return err
			}
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read report %s: %w", path, err)
		}

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return fmt.Errorf("failed to build renderer: %w", err)
		}
		out, err := renderer.Render(string(raw))
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}

		fmt.Print(out)
		return nil
	},
}

// latestReport returns the most recently modified *.md file under dir.
func latestReport(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read reports directory %s: %w", dir, err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(dir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no reports found under %s", dir)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].path, nil
}
