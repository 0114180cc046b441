package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-marczewski/skillforge/internal/config"
	"github.com/a-marczewski/skillforge/internal/skillforge"
	"github.com/a-marczewski/skillforge/internal/skillforge/integrate"
	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
	"github.com/a-marczewski/skillforge/internal/storage"
	"go.uber.org/zap"
)

// Diagnostics holds diagnostic information
type Diagnostics struct {
	Checks []CheckResult `json:"checks"`
	Issues []string      `json:"issues"`
	Status string        `json:"status"`
}

// CheckResult represents the result of a single check
type CheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "fail", "warn"
	Message  string `json:"message"`
	Severity string `json:"severity"` // "info", "warning", "error"
}

func pass(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "pass", Message: msg, Severity: "info"}
}

func warn(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "warn", Message: msg, Severity: "warning"}
}

func fail(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "fail", Message: msg, Severity: "error"}
}

// Runner runs diagnostic checks
type Runner struct {
	config   *config.Config
	db       *storage.DB
	registry scout.Registry
}

// NewRunner creates a new diagnostic runner
func NewRunner(cfg *config.Config, db *storage.DB) *Runner {
	return &Runner{
		config:   cfg,
		db:       db,
		registry: skillforge.NewRegistry(cfg.Forge, zap.NewNop()),
	}
}

// RunAll runs all diagnostic checks
func (d *Runner) RunAll() *Diagnostics {
	var results []CheckResult
	var issues []string

	results = append(results, d.checkDatabaseConnectivity()...)
	results = append(results, d.checkFileSystemPermissions()...)
	results = append(results, d.checkOutputDirectory()...)
	results = append(results, d.checkConfiguration()...)
	results = append(results, d.checkSources()...)
	results = append(results, d.checkNotifier()...)
	results = append(results, d.checkStorageHealth()...)

	for _, result := range results {
		if result.Status == "fail" {
			issues = append(issues, result.Message)
		}
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}

	return &Diagnostics{
		Checks: results,
		Issues: issues,
		Status: status,
	}
}

// checkDatabaseConnectivity checks database connectivity and basic operations
func (d *Runner) checkDatabaseConnectivity() []CheckResult {
	if d.db == nil {
		return []CheckResult{fail("database_connectivity", "Database is not open")}
	}

	var results []CheckResult
	if err := d.db.Ping(); err != nil {
		results = append(results, fail("database_connectivity", fmt.Sprintf("Cannot connect to database: %v", err)))
	} else {
		results = append(results, pass("database_connectivity", "Database connection successful"))
	}

	if _, err := d.db.Conn().Exec("SELECT 1"); err != nil {
		results = append(results, fail("database_query", fmt.Sprintf("Cannot execute basic query: %v", err)))
	} else {
		results = append(results, pass("database_query", "Basic database query successful"))
	}
	return results
}

// checkFileSystemPermissions checks the .skillforge directory and its subdirectories
func (d *Runner) checkFileSystemPermissions() []CheckResult {
	var results []CheckResult
	forgeDir := d.config.ForgeDir

	if _, err := os.Stat(forgeDir); os.IsNotExist(err) {
		return []CheckResult{fail("forge_directory_exists", fmt.Sprintf(".skillforge directory does not exist: %s", forgeDir))}
	} else if err != nil {
		return []CheckResult{fail("forge_directory_access", fmt.Sprintf("Cannot access .skillforge directory: %v", err))}
	}

	if err := testDirectoryPermissions(forgeDir); err != nil {
		results = append(results, fail("forge_directory_permissions", fmt.Sprintf("Insufficient permissions for .skillforge directory: %v", err)))
	} else {
		results = append(results, pass("forge_directory_permissions", "Sufficient permissions for .skillforge directory"))
	}

	for _, subdir := range []string{filepath.Join(forgeDir, "logs"), filepath.Join(forgeDir, "store")} {
		name := filepath.Base(subdir)
		if _, err := os.Stat(subdir); os.IsNotExist(err) {
			results = append(results, warn(name+"_exists", fmt.Sprintf("Subdirectory does not exist: %s", subdir)))
		} else if err != nil {
			results = append(results, fail(name+"_access", fmt.Sprintf("Cannot access subdirectory: %v", err)))
		} else {
			results = append(results, pass(name+"_access", fmt.Sprintf("Accessible subdirectory: %s", subdir)))
		}
	}
	return results
}

// checkOutputDirectory checks that skills can be written
func (d *Runner) checkOutputDirectory() []CheckResult {
	dir := d.config.Forge.OutputDir
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return []CheckResult{warn("output_directory", fmt.Sprintf("Skill directory %s does not exist yet; it is created on first integration", dir))}
	case err != nil:
		return []CheckResult{fail("output_directory", fmt.Sprintf("Cannot access skill directory: %v", err))}
	case !info.IsDir():
		return []CheckResult{fail("output_directory", fmt.Sprintf("Skill directory path is not a directory: %s", dir))}
	}

	var results []CheckResult
	if err := testDirectoryPermissions(dir); err != nil {
		results = append(results, fail("output_directory", fmt.Sprintf("Skill directory is not writable: %v", err)))
	} else {
		results = append(results, pass("output_directory", fmt.Sprintf("Skill directory is writable: %s", dir)))
	}

	manifests, err := integrate.List(dir)
	if err != nil {
		results = append(results, warn("installed_skills", fmt.Sprintf("Cannot read installed skills: %v", err)))
	} else {
		results = append(results, pass("installed_skills", fmt.Sprintf("%d skill(s) installed", len(manifests))))
	}
	return results
}

// testDirectoryPermissions tests if we can read and write to a directory
func testDirectoryPermissions(dir string) error {
	testFile := filepath.Join(dir, ".permission_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return err
	}
	os.Remove(testFile)
	return nil
}

// checkConfiguration checks configuration validity
func (d *Runner) checkConfiguration() []CheckResult {
	var results []CheckResult

	if err := d.config.Validate(); err != nil {
		results = append(results, fail("configuration_validation", fmt.Sprintf("Configuration validation failed: %v", err)))
	} else {
		results = append(results, pass("configuration_validation", "Configuration is valid"))
	}

	if d.config.Forge.Enabled {
		results = append(results, pass("forge_enabled", "SkillForge is enabled"))
	} else {
		results = append(results, warn("forge_enabled", "SkillForge is disabled; set skillforge.enabled = true to run it"))
	}
	if !d.config.Forge.AutoIntegrate {
		results = append(results, warn("auto_integrate", "Auto-integration is off; qualifying skills are only reported"))
	}
	return results
}

// checkSources reports which configured sources will actually be searched
func (d *Runner) checkSources() []CheckResult {
	var results []CheckResult
	var active, inactive []string

	for _, name := range d.config.Forge.Sources {
		if _, ok := d.registry.Lookup(scout.ParseSource(name)); ok {
			active = append(active, name)
		} else {
			inactive = append(inactive, name)
		}
	}

	switch {
	case len(active) == 0:
		results = append(results, warn("sources", "No configured source has an adapter; runs will discover nothing"))
	default:
		results = append(results, pass("sources", "Active sources: "+strings.Join(active, ", ")))
	}
	if len(inactive) > 0 {
		results = append(results, warn("sources_skipped", "Not implemented or unknown, skipped: "+strings.Join(inactive, ", ")))
	}

	if d.config.Forge.GitHub.Token == "" {
		results = append(results, warn("github_token", "No GitHub token configured; search requests are heavily rate limited"))
	} else {
		results = append(results, pass("github_token", "GitHub token configured"))
	}
	return results
}

// checkNotifier reports whether integrations will be announced
func (d *Runner) checkNotifier() []CheckResult {
	tg := d.config.Telegram
	switch {
	case tg.BotToken == "":
		return []CheckResult{warn("notifier", "No Telegram bot token; new skills are not announced")}
	case len(tg.AllowedUsers) == 0:
		return []CheckResult{warn("notifier", "Telegram bot token set but no allowed users to notify")}
	default:
		return []CheckResult{pass("notifier", fmt.Sprintf("Telegram notifications go to user %s", tg.AllowedUsers[0]))}
	}
}

// checkStorageHealth checks the health of the storage system
func (d *Runner) checkStorageHealth() []CheckResult {
	var results []CheckResult

	if _, err := os.Stat(d.config.DBPath); os.IsNotExist(err) {
		results = append(results, fail("database_file_exists", fmt.Sprintf("Database file does not exist: %s", d.config.DBPath)))
	} else if err != nil {
		results = append(results, fail("database_file_access", fmt.Sprintf("Cannot access database file: %v", err)))
	} else {
		results = append(results, pass("database_file_access", "Database file is accessible"))
	}

	if d.db == nil {
		return results
	}
	var integrity string
	if err := d.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		results = append(results, fail("database_integrity", fmt.Sprintf("Database integrity check failed: %v", err)))
	} else if integrity != "ok" {
		results = append(results, fail("database_integrity", fmt.Sprintf("Database integrity check reported: %s", integrity)))
	} else {
		results = append(results, pass("database_integrity", "Database integrity check passed"))
	}
	return results
}

// PrintReport writes a formatted diagnostic report
func (d *Diagnostics) PrintReport(w io.Writer) {
	fmt.Fprintf(w, "=== SkillForge Diagnostic Report ===\n")
	fmt.Fprintf(w, "Status: %s\n\n", d.Status)

	if len(d.Issues) > 0 {
		fmt.Fprintf(w, "Issues Found:\n")
		for i, issue := range d.Issues {
			fmt.Fprintf(w, "  %d. %s\n", i+1, issue)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Detailed Checks:\n")
	for _, check := range d.Checks {
		statusSymbol := "✓"
		if check.Status == "fail" {
			statusSymbol = "✗"
		} else if check.Status == "warn" {
			statusSymbol = "!"
		}
		fmt.Fprintf(w, "  %s %s: %s\n", statusSymbol, check.Name, check.Message)
	}

	fmt.Fprintln(w, "\nRecommendations:")
	if len(d.Issues) == 0 {
		fmt.Fprintln(w, "  ✓ System is operating normally")
	} else {
		fmt.Fprintln(w, "  • Check the .skillforge and skill directory permissions")
		fmt.Fprintln(w, "  • Verify the run history database is not corrupted")
		fmt.Fprintln(w, "  • Review the [skillforge] section of .skillforge/config.toml")
	}
}
