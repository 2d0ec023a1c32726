package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain/project"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			projects, err := a.hierarchy.ListProjects(ctx, project.ListFilter{
				Status:     project.ProjectStatus(status),
				TextSearch: search,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}
			if len(projects) == 0 {
				cmd.Println("No projects found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tEPICS\tTEST CASES\tUPDATED")
			for i := range projects {
				p := &projects[i]
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					p.ID, p.Name, p.Status, p.EpicCount, p.TestCaseCount, p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <project-id> <file>",
	Short: "Import a JSON or YAML fragment into a project (file - reads stdin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd.InOrStdin(), args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.importer.ImportRaw(ctx, args[0], data)
			if res != nil {
				printImportResult(cmd, res)
			}
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			if res.ErrorCount > 0 {
				return fmt.Errorf("%d of %d epics failed", res.ErrorCount, res.ErrorCount+res.SuccessCount)
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [project-id]",
	Short: "Print statistics for one project or all projects",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if len(args) == 0 {
				o, err := a.hierarchy.OverallStatistics(ctx)
				if err != nil {
					return fmt.Errorf("overall statistics: %w", err)
				}
				cmd.Printf("\n%s\n\n", cyan("=== All Projects ==="))
				cmd.Printf("  Projects:   %d\n", o.TotalProjects)
				cmd.Printf("  Epics:      %d\n", o.TotalEpics)
				cmd.Printf("  Features:   %d\n", o.TotalFeatures)
				cmd.Printf("  Use cases:  %d\n", o.TotalUseCases)
				cmd.Printf("  Test cases: %d\n", o.TotalTestCases)
				for _, st := range project.ProjectStatuses {
					if n := o.ByStatus[st]; n > 0 {
						cmd.Printf("    %-10s %d\n", st, n)
					}
				}
				return nil
			}
			s, err := a.hierarchy.ProjectStatistics(ctx, args[0])
			if err != nil {
				return fmt.Errorf("project statistics: %w", err)
			}
			cmd.Printf("\n%s\n\n", cyan("=== "+s.ProjectName+" ==="))
			cmd.Printf("  Status:     %s\n", s.Status)
			cmd.Printf("  Epics:      %d\n", s.EpicCount)
			cmd.Printf("  Features:   %d\n", s.FeatureCount)
			cmd.Printf("  Use cases:  %d\n", s.UseCaseCount)
			cmd.Printf("  Test cases: %d\n", s.TestCaseCount)
			j := s.JiraSyncStats
			cmd.Printf("  Jira:       %s pushed, %s pending, %s failed, %d not pushed\n",
				green(j.Pushed), yellow(j.Pending), red(j.Failed), j.NotPushed)
			if len(s.ComplianceCoverage) > 0 {
				cmd.Printf("  Compliance: %s\n", strings.Join(s.ComplianceCoverage, ", "))
			}
			return nil
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <project-id> <epic-id>",
	Short: "Create a Jira epic for an epic and record its sync state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		return withAppConfig(cmd, promptJiraToken, func(ctx context.Context, a *app) error {
			if a.push == nil {
				return errors.New("jira is not configured: set JIRA_BASE_URL")
			}
			res, err := a.push.PushEpic(ctx, args[0], args[1], by)
			if err != nil {
				cmd.PrintErrf("%s %v\n", red("push failed:"), err)
				return err
			}
			cmd.Printf("%s %s → %s\n", green("pushed"), res.EpicID, res.IssueKey)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by project status")
	listCmd.Flags().String("search", "", "case-insensitive name/description search")
	listCmd.Flags().Int("limit", 0, "maximum number of projects")
	pushCmd.Flags().String("by", os.Getenv("USER"), "user recorded as jira_pushed_by")
	rootCmd.AddCommand(listCmd, importCmd, statsCmd, pushCmd)
}

func withApp(cmd *cobra.Command, fn func(context.Context, *app) error) error {
	return withAppConfig(cmd, nil, fn)
}

// withAppConfig loads config, applies adjust if set, then runs fn against
// a fully wired app.
func withAppConfig(cmd *cobra.Command, adjust func(*config.Config) error, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if adjust != nil {
		if err := adjust(cfg); err != nil {
			return err
		}
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printImportResult(cmd *cobra.Command, res *project.ImportResult) {
	cmd.Printf("Imported %s epics, %s failed\n", green(res.SuccessCount), red(res.ErrorCount))
	for _, e := range res.Errors {
		cmd.Printf("  %s %s: %s\n", red("✗"), e.Key, e.Error)
	}
}

// promptJiraToken asks for the Jira API token when none is configured and
// stdin is a terminal.
func promptJiraToken(cfg *config.Config) error {
	if cfg.Jira.BaseURL == "" || cfg.Jira.APIToken != "" {
		return nil
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec // G115: file descriptors fit in int
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprint(os.Stderr, "Jira API token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	cfg.Jira.APIToken = strings.TrimSpace(string(b))
	return nil
}
