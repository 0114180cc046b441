package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a-marczewski/skillforge/internal/app"
	"github.com/a-marczewski/skillforge/internal/doctor"
	"github.com/a-marczewski/skillforge/internal/skillforge"
	"github.com/a-marczewski/skillforge/internal/skillforge/integrate"
	"github.com/a-marczewski/skillforge/internal/storage"
	"github.com/a-marczewski/skillforge/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "skillforge",
	Short: "SkillForge - discover, score and install agent skills",
	Long: `SkillForge searches public sources for agent skills, scores each candidate
and writes manifests for the ones that qualify.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forgeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(completionCmd)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `Generate the autocompletion script for SkillForge for the specified shell.
See each command's help for details on how to use the generated script.
	`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

var versionCheck bool

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) {
	fmt.Printf("SkillForge v%s\n", version.Version)
	if !versionCheck {
		return
	}

	ctx, cancel := context.WithTimeout(a.Ctx, 10*time.Second)
	defer cancel()
	latest, err := version.CheckForUpdates(ctx)
	switch {
	case err != nil:
		a.Core.Logger.Warn("Update check failed", zap.Error(err))
		fmt.Printf("⚠️  Could not check for updates: %v\n", err)
	case latest == "":
		fmt.Println("✅ You are running the latest release")
	default:
		fmt.Printf("⬆️  SkillForge v%s is available\n", latest)
	}
}

var forgeCmd = &cobra.Command{
	Use:   "forge",
	Short: "Run the discovery pipeline once",
	Long: `Run one SkillForge pass: scout every configured source, deduplicate,
score each candidate and integrate the ones that qualify.

Examples:
  skillforge forge
  skillforge forge --json > report.json`,
}

var forgeJSON bool

func init() {
	forgeCmd.Flags().BoolVar(&forgeJSON, "json", false, "Print the full report as JSON")
}

func runForgeCmd(a *app.App, cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(a.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.RunForge(ctx)
	if err != nil {
		a.Core.Logger.Error("Forge run failed", zap.Error(err))
		fmt.Printf("❌ Forge run failed: %v\n", err)
		a.Close()
		os.Exit(1)
	}

	if forgeJSON {
		printJSON(report)
		return
	}
	printReport(report)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the pipeline on the configured scan interval",
	Long: `Run SkillForge immediately and then every scan_interval_hours until
interrupted. Old run history beyond --keep runs is pruned after each pass.`,
}

var watchKeep int

func init() {
	watchCmd.Flags().IntVar(&watchKeep, "keep", 100, "Number of runs to keep in history (0 keeps everything)")
}

func runWatchCmd(a *app.App, cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(a.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(a.Core.Config.Forge.ScanIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger := a.Core.Logger.With(zap.Duration("interval", interval))
	logger.Info("Watching for new skills")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := a.RunForge(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			logger.Info("Watch stopped")
			return
		case err != nil:
			logger.Error("Forge run failed", zap.Error(err))
		default:
			printReport(report)
			if watchKeep > 0 {
				if n, err := a.Core.DB.PruneRuns(ctx, watchKeep); err != nil {
					logger.Warn("Failed to prune run history", zap.Error(err))
				} else if n > 0 {
					logger.Debug("Pruned run history", zap.Int64("removed", n))
				}
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Watch stopped")
			return
		case <-ticker.C:
		}
	}
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent forge runs",
}

var runsLimit int

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "Number of runs to show")
}

func runRunsCmd(a *app.App, cmd *cobra.Command, args []string) {
	runs, err := a.Core.DB.RecentRuns(a.Ctx, runsLimit)
	if err != nil {
		a.Core.Logger.Error("Failed to list runs", zap.Error(err))
		fmt.Printf("❌ Failed to list runs: %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet. Use 'skillforge forge' to start one.")
		return
	}

	fmt.Printf("Recent runs (%d):\n\n", len(runs))
	for _, r := range runs {
		fmt.Printf("%s  %s  discovered=%d auto=%d manual=%d skipped=%d failures=%d\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Discovered, r.AutoIntegrated, r.ManualReview, r.Skipped, r.Failures)
	}
}

var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the full report of a recorded run",
	Args:  cobra.ExactArgs(1),
}

var showJSON bool

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the report as JSON")
}

func runShowCmd(a *app.App, cmd *cobra.Command, args []string) {
	report, err := a.Core.DB.GetReport(a.Ctx, args[0])
	if errors.Is(err, storage.ErrRunNotFound) {
		fmt.Printf("❌ No run with id %s\n", args[0])
		a.Close()
		os.Exit(1)
	}
	if err != nil {
		a.Core.Logger.Error("Failed to load run", zap.String("run_id", args[0]), zap.Error(err))
		fmt.Printf("❌ Failed to load run: %v\n", err)
		a.Close()
		os.Exit(1)
	}

	if showJSON {
		printJSON(report)
		return
	}
	printReport(report)
	if len(report.Results) == 0 {
		return
	}
	fmt.Println("\nCandidates:")
	for _, res := range report.Results {
		fmt.Printf("  %-6s %.2f  %s  %s\n", res.Recommendation, res.Score, res.Candidate.Name, res.Candidate.SourceURL)
	}
}

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List skills installed in the output directory",
}

func runSkillsCmd(a *app.App, cmd *cobra.Command, args []string) {
	dir := a.Core.Config.Forge.OutputDir
	manifests, err := integrate.List(dir)
	if err != nil {
		a.Core.Logger.Error("Failed to list skills", zap.String("dir", dir), zap.Error(err))
		fmt.Printf("❌ Failed to list skills: %v\n", err)
		return
	}
	if len(manifests) == 0 {
		fmt.Printf("No skills installed in %s\n", dir)
		return
	}

	fmt.Printf("Installed skills in %s:\n\n", dir)
	for _, m := range manifests {
		fmt.Printf("• %s v%s", m.Skill.Name, m.Skill.Version)
		if m.Forge != nil {
			fmt.Printf("  (score %.2f via %s)", m.Forge.Score, m.Forge.DiscoveredVia)
		}
		fmt.Println()
		if m.Skill.Description != "" {
			fmt.Printf("    %s\n", m.Skill.Description)
		}
	}
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on the SkillForge installation",
}

func runDoctorCmd(a *app.App, cmd *cobra.Command, args []string) {
	diag := doctor.NewRunner(a.Core.Config, a.Core.DB).RunAll()
	diag.PrintReport(os.Stdout)
	if len(diag.Issues) > 0 {
		a.Close()
		os.Exit(1)
	}
}

func printReport(r *skillforge.ForgeReport) {
	if r.RunID == "" {
		fmt.Println("SkillForge is disabled; nothing was run.")
		return
	}
	fmt.Printf("Run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Printf("  Discovered:      %d\n", r.Discovered)
	fmt.Printf("  Evaluated:       %d\n", r.Evaluated)
	fmt.Printf("  Auto-integrated: %d\n", r.AutoIntegrated)
	fmt.Printf("  Manual review:   %d\n", r.ManualReview)
	fmt.Printf("  Skipped:         %d\n", r.Skipped)
	if len(r.Integrated) > 0 {
		fmt.Printf("  New skills:      %s\n", strings.Join(r.Integrated, ", "))
	}
	for _, f := range r.Failures {
		fmt.Printf("  ⚠️  %s %s: %s\n", f.Stage, f.Subject, f.Error)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// newAppRunner creates a Cobra Run function closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		runFunc(a, cmd, args)
	}
}

func main() {
	// Secrets such as GITHUB_TOKEN may live in a local .env; it is optional.
	_ = godotenv.Load()

	appInstance, err := app.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	versionCmd.Run = newAppRunner(appInstance, runVersionCmd)
	forgeCmd.Run = newAppRunner(appInstance, runForgeCmd)
	watchCmd.Run = newAppRunner(appInstance, runWatchCmd)
	runsCmd.Run = newAppRunner(appInstance, runRunsCmd)
	showCmd.Run = newAppRunner(appInstance, runShowCmd)
	skillsCmd.Run = newAppRunner(appInstance, runSkillsCmd)
	doctorCmd.Run = newAppRunner(appInstance, runDoctorCmd)

	if err := rootCmd.Execute(); err != nil {
		appInstance.Core.Logger.Error("Root command execution failed", zap.Error(err))
		appInstance.Close()
		os.Exit(1)
	}
}
