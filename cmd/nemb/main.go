//go:build linux

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/nemb/internal/logging"
	"github.com/ja7ad/nemb/pkg/config"
	"github.com/ja7ad/nemb/pkg/nemb"
	"github.com/ja7ad/nemb/pkg/provider/model"
	"github.com/ja7ad/nemb/pkg/provider/rapl"
)

type runOpts struct {
	configPath string
	duration   time.Duration
	outPath    string
	console    bool
	logPath    string
	logLevel   string
}

func main() {
	var o runOpts

	root := &cobra.Command{
		Use:   "nemb",
		Short: "Native Energy Measurement Backend",
		Long: `nemb samples Intel RAPL energy counters (and, as a cross-validation
fallback, a /proc-based power model) on a fixed cadence, time-aligns and
cross-validates the readings, and reports total and per-domain energy
for the session.

* GitHub: https://github.com/ja7ad/nemb`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a measurement session for a fixed duration and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), o)
		},
	}
	runCmd.Flags().StringVarP(&o.configPath, "config", "c", "", "path to a YAML options file (see docs for the full table)")
	runCmd.Flags().DurationVarP(&o.duration, "duration", "d", 10*time.Second, "how long to measure before stopping")
	runCmd.Flags().StringVarP(&o.outPath, "out", "o", "", "write the session result as JSON to this path instead of stdout")
	runCmd.Flags().BoolVar(&o.console, "console", true, "log human-readable output to stderr in addition to any log file")
	runCmd.Flags().StringVar(&o.logPath, "log-file", "", "rotate logs into this file as well as the console")
	runCmd.Flags().StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	reportCmd := &cobra.Command{
		Use:   "report <result.json>",
		Short: "print a human-readable summary of a session result written by 'run --out'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printReport(args[0])
		},
	}

	root.AddCommand(runCmd, reportCmd)

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func runSession(ctx context.Context, o runOpts) error {
	logger := logging.New(logging.Config{
		Level:    o.logLevel,
		FilePath: o.logPath,
		Console:  o.console,
	})
	slog.SetDefault(logger)

	file := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		file = loaded
	}

	var cfg nemb.Config
	file.Into(&cfg)

	sess := nemb.New(cfg)

	if file.ProviderEnabled("intel_rapl") {
		raplProvider := rapl.New(rapl.Options{Domains: file.ProviderDomains("intel_rapl")})
		if err := sess.AddProvider(raplProvider, nemb.ProviderConfig{
			Name:     "intel_rapl",
			Disjoint: true,
		}); err != nil {
			logger.Warn("intel_rapl unavailable", "err", err)
		}
	}

	if file.ProviderEnabled("proc_model") {
		modelProvider := model.New(model.Options{})
		if err := sess.AddProvider(modelProvider, nemb.ProviderConfig{
			Name:              "proc_model",
			Disjoint:          false,
			CrossValidateWith: []string{"intel_rapl"},
		}); err != nil {
			logger.Warn("proc_model unavailable", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start measurements: %w", err)
	}
	logger.Info("session started", "duration", o.duration)

	select {
	case <-ctx.Done():
		logger.Info("interrupted")
	case <-time.After(o.duration):
	}

	result := sess.Stop()
	logger.Info("session stopped",
		"duration_ns", result.DurationNS,
		"restarts", result.Diagnostics.ProviderRestarts,
		"orphans", result.Diagnostics.OrphanCheckpoints,
	)

	return writeResult(result, o.outPath)
}

func writeResult(result nemb.Result, outPath string) error {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if outPath == "" {
		fmt.Println(string(b))
		return nil
	}

	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// printReport loads a session result written by 'run --out' and prints
// a short human-readable summary instead of the raw JSON.
func printReport(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read result: %w", err)
	}

	var result nemb.Result
	if err := json.Unmarshal(b, &result); err != nil {
		return fmt.Errorf("parse result: %w", err)
	}

	fmt.Printf("session %s\n", result.SessionID)
	fmt.Printf("duration: %s\n", time.Duration(result.DurationNS))
	fmt.Printf("restarts: %d  orphan checkpoints: %d  attributions: %d\n",
		result.Diagnostics.ProviderRestarts, result.Diagnostics.OrphanCheckpoints, len(result.Attributions))

	providers := make([]string, 0, len(result.TotalEnergyByProviderJoules))
	for name := range result.TotalEnergyByProviderJoules {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	fmt.Println("energy by provider (J):")
	for _, name := range providers {
		fmt.Printf("  %-16s %.3f\n", name, result.TotalEnergyByProviderJoules[name])
	}

	domains := make([]string, 0, len(result.TotalEnergyByDomainJoules))
	for name := range result.TotalEnergyByDomainJoules {
		domains = append(domains, name)
	}
	sort.Strings(domains)
	fmt.Println("energy by domain (J):")
	for _, name := range domains {
		fmt.Printf("  %-16s %.3f\n", name, result.TotalEnergyByDomainJoules[name])
	}

	return nil
}
