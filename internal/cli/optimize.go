package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/i18n"
	"github.com/aihub/agentdesk/internal/optimization"
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Browse and analyze optimization suggestions",
	}

	cmd.AddCommand(newOptimizeAnalyzeCmd())
	cmd.AddCommand(newOptimizeListCmd())
	return cmd
}

type optimizeFlags struct {
	filters optimization.Filters
	lang    string
	asJSON  bool
}

func (f *optimizeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.filters.Category, "category", optimization.Wildcard, "frontend, backend, network, code or all")
	cmd.Flags().StringVar(&f.filters.Impact, "impact", optimization.Wildcard, "high, medium, low or all")
	cmd.Flags().StringVar(&f.filters.Difficulty, "difficulty", optimization.Wildcard, "easy, medium, hard or all")
	cmd.Flags().StringVar(&f.lang, "lang", "", "language for suggestion text (defaults to $LANG)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON")
}

func (f *optimizeFlags) suggestions() []domain.Optimization {
	lang := f.lang
	if lang == "" {
		lang = localeFromEnv()
	}
	return optimization.FilterOptimizations(optimization.DefaultCatalog(i18n.Negotiate(lang)), f.filters)
}

func newOptimizeAnalyzeCmd() *cobra.Command {
	var f optimizeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize the suggestion catalog by impact, difficulty and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis := optimization.PerformOptimizationAnalysis(f.suggestions())
			out := cmd.OutOrStdout()
			if f.asJSON {
				return writeJSON(out, analysis)
			}
			printAnalysis(out, analysis)
			return nil
		},
	}

	f.register(cmd)
	return cmd
}

func newOptimizeListCmd() *cobra.Command {
	var f optimizeFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := f.suggestions()
			out := cmd.OutOrStdout()
			if f.asJSON {
				return writeJSON(out, list)
			}
			for _, o := range list {
				fmt.Fprintf(out, "  [%s/%s/%s] %s (%s)\n", o.Category, o.Impact, o.Difficulty, o.Title, o.EstimatedImprovement)
			}
			return nil
		},
	}

	f.register(cmd)
	return cmd
}

func printAnalysis(w io.Writer, a optimization.Analysis) {
	fmt.Fprintf(w, "Suggestions:           %d\n", a.Total)
	fmt.Fprintf(w, "Impact:                high=%d medium=%d low=%d\n", a.ByImpact.High, a.ByImpact.Medium, a.ByImpact.Low)
	fmt.Fprintf(w, "Difficulty:            easy=%d medium=%d hard=%d\n", a.ByDifficulty.Easy, a.ByDifficulty.Medium, a.ByDifficulty.Hard)
	fmt.Fprintf(w, "Estimated improvement: %s\n", a.EstimatedImprovement)

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range a.CategoryBreakdown {
		fmt.Fprintf(w, "  %-10s count=%d impactScore=%d\n", c.Category, c.Count, c.ImpactScore)
	}

	if len(a.PriorityOptimizations) > 0 {
		fmt.Fprintln(w, "\nPriority (high impact, easy):")
		for _, o := range a.PriorityOptimizations {
			fmt.Fprintf(w, "  - %s\n", o.Title)
		}
	}
}

// localeFromEnv reads the POSIX locale, e.g. "zh_CN.UTF-8" -> "zh-CN".
func localeFromEnv() string {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(k); v != "" && v != "C" && v != "POSIX" {
			if i := strings.IndexAny(v, ".@"); i >= 0 {
				v = v[:i]
			}
			return strings.ReplaceAll(v, "_", "-")
		}
	}
	return ""
}
