package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/gateway"
	"github.com/aihub/agentdesk/internal/performance"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark server-side operations",
	}

	cmd.AddCommand(newBenchRunCmd())
	cmd.AddCommand(newBenchTargetsCmd())
	return cmd
}

// benchTargets builds the same operation table the gateway benchmarks.
func benchTargets(a *app) map[string]func(ctx context.Context) error {
	return gateway.New(a.cfg, log, a.gatewayOptions(nil)...).BenchmarkTargets()
}

func newBenchTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the operations that can be benchmarked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, n := range slices.Sorted(maps.Keys(benchTargets(a))) {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newBenchRunCmd() *cobra.Command {
	var (
		opts    performance.BenchmarkOptions
		compare string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "run <target>",
		Short: "Run a benchmark and print latency statistics and a score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			targets := benchTargets(a)
			run := func(name string) (domain.BenchmarkResult, error) {
				fn, ok := targets[name]
				if !ok {
					return domain.BenchmarkResult{}, fmt.Errorf("unknown benchmark target %q", name)
				}
				o := opts
				o.Name = name
				res, err := performance.Run(cmd.Context(), o, fn)
				if err != nil {
					return res, err
				}
				a.history.Add(res)
				return res, nil
			}

			first, err := run(args[0])
			if err != nil {
				return err
			}
			results := []domain.BenchmarkResult{first}
			var cmp *performance.Comparison
			if compare != "" {
				second, err := run(compare)
				if err != nil {
					return err
				}
				results = append(results, second)
				c := performance.Compare(first, second)
				cmp = &c
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"results": results, "comparison": cmp})
			}
			for _, r := range results {
				printBenchmark(out, r)
			}
			if cmp != nil {
				fmt.Fprintf(out, "Compare: mean %+.1f%% p95 %+.1f%% winner=%s\n",
					cmp.MeanChangePct, cmp.P95ChangePct, winnerName(*cmp))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Iterations, "iterations", "n", 100, "number of iterations")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 1, "iterations in flight at once")
	cmd.Flags().Float64Var(&opts.Budget, "budget", 0, "p95 budget in milliseconds used for the score")
	cmd.Flags().StringVar(&compare, "compare", "", "second target to run and compare against")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printBenchmark(w io.Writer, r domain.BenchmarkResult) {
	s := r.Stats
	fmt.Fprintf(w, "%s: %d iterations, concurrency %d, %.1f ops/s\n", r.Name, r.Iterations, r.Concurrency, r.Throughput)
	fmt.Fprintf(w, "  mean=%.3fms p50=%.3fms p95=%.3fms p99=%.3fms max=%.3fms errors=%d\n",
		s.Mean, s.P50, s.P95, s.P99, s.Max, s.Errors)
	fmt.Fprintf(w, "  score=%.0f grade=%s\n", r.Score, r.Grade)
}

func winnerName(c performance.Comparison) string {
	switch c.Winner {
	case "a":
		return c.A
	case "b":
		return c.B
	default:
		return c.Winner
	}
}
