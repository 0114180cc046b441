// Package integrate materializes accepted candidates as skill directories.
//
// Integration happens in two steps. Prepare validates a candidate and reserves
// its directory name; it must be called sequentially, in evaluation order, so
// that the later of two colliding candidates is the one rejected. Commit does
// the filesystem work and is safe to call concurrently for distinct plans.
package integrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/a-marczewski/skillforge/internal/skillforge/evaluate"
	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

// stagePrefix marks in-progress directories; List ignores them.
const stagePrefix = ".stage-"

// Option customizes an Integrator.
type Option func(*Integrator)

// WithOverwrite allows replacing skill directories that already exist.
func WithOverwrite(overwrite bool) Option {
	return func(i *Integrator) {
		i.overwrite = overwrite
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Integrator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithClock overrides the time source used for integrated_at.
func WithClock(now func() time.Time) Option {
	return func(i *Integrator) {
		if now != nil {
			i.now = now
		}
	}
}

// Integrator writes skill manifests into an output directory.
type Integrator struct {
	outputDir string
	overwrite bool
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	reserved map[string]string // slug -> candidate name
}

// Plan is a validated candidate with a reserved directory name.
type Plan struct {
	Name     string
	Slug     string
	Manifest Manifest
}

// New creates an Integrator for outputDir.
func New(outputDir string, opts ...Option) *Integrator {
	i := &Integrator{
		outputDir: outputDir,
		logger:    zap.NewNop(),
		now:       time.Now,
		reserved:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// OutputDir returns the directory skills are written to.
func (i *Integrator) OutputDir() string {
	return i.outputDir
}

// Reset forgets all reservations. Call it at the start of every run.
func (i *Integrator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.reserved = make(map[string]string)
}

// Reserve claims the directory name derived from name for this run.
func (i *Integrator) Reserve(name string) (string, error) {
	slug := SanitizeName(name)
	if slug == "" {
		return "", wrap(name, ErrInvalidName)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if owner, taken := i.reserved[slug]; taken {
		return "", wrap(name, fmt.Errorf("%w: %q already claimed %s", ErrNameCollision, owner, slug))
	}
	i.reserved[slug] = name
	return slug, nil
}

// Prepare validates an evaluated candidate and reserves its directory.
func (i *Integrator) Prepare(res evaluate.EvalResult, runID string) (Plan, error) {
	name := res.Candidate.Name
	m, err := NewResultManifest(res, runID, i.now())
	if err != nil {
		return Plan{}, wrap(name, err)
	}
	slug, err := i.Reserve(name)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Name: name, Slug: slug, Manifest: m}, nil
}

// Commit writes the plan's manifest and instructions to disk. Both files are
// staged in a hidden directory first. A new skill directory is renamed into
// place as a whole; when overwriting, the instructions are moved before the
// manifest so a skill is only listed once both files are current. A failed
// commit leaves no new files behind.
func (i *Integrator) Commit(ctx context.Context, p Plan) error {
	if err := ctx.Err(); err != nil {
		return wrap(p.Name, err)
	}

	dir := filepath.Join(i.outputDir, p.Slug)
	if err := os.MkdirAll(i.outputDir, 0755); err != nil {
		return wrap(p.Name, fmt.Errorf("failed to create output directory: %w", err))
	}

	exists := false
	if _, err := os.Lstat(dir); err == nil {
		exists = true
	} else if !os.IsNotExist(err) {
		return wrap(p.Name, fmt.Errorf("failed to inspect skill directory: %w", err))
	}
	if exists && !i.overwrite {
		return wrap(p.Name, fmt.Errorf("%w: %s", ErrTargetExists, dir))
	}

	data, err := toml.Marshal(p.Manifest)
	if err != nil {
		return wrap(p.Name, fmt.Errorf("failed to encode manifest: %w", err))
	}

	stage, err := os.MkdirTemp(i.outputDir, stagePrefix+p.Slug+"-*")
	if err != nil {
		return wrap(p.Name, fmt.Errorf("failed to create staging directory: %w", err))
	}
	defer os.RemoveAll(stage)

	if err := writeFile(filepath.Join(stage, InstructionsFile), []byte(p.Manifest.Instructions())); err != nil {
		return wrap(p.Name, err)
	}
	if err := writeFile(filepath.Join(stage, ManifestFile), data); err != nil {
		return wrap(p.Name, err)
	}

	if !exists {
		if err := os.Chmod(stage, 0755); err != nil {
			return wrap(p.Name, fmt.Errorf("failed to chmod skill directory: %w", err))
		}
		// rename(2) replaces an empty directory, so the existence check above
		// is what guards a directory created since.
		if err := os.Rename(stage, dir); err != nil {
			return wrap(p.Name, fmt.Errorf("failed to move skill directory into place: %w", err))
		}
	} else {
		for _, name := range []string{InstructionsFile, ManifestFile} {
			if err := os.Rename(filepath.Join(stage, name), filepath.Join(dir, name)); err != nil {
				return wrap(p.Name, fmt.Errorf("failed to move %s into place: %w", name, err))
			}
		}
	}

	i.logger.Info("Integrated skill",
		zap.String("name", p.Name),
		zap.String("dir", dir))
	return nil
}

// Integrate validates, reserves and writes a single candidate.
func (i *Integrator) Integrate(ctx context.Context, c scout.Candidate) error {
	m, err := NewManifest(c)
	if err != nil {
		return wrap(c.Name, err)
	}
	slug, err := i.Reserve(c.Name)
	if err != nil {
		return err
	}
	return i.Commit(ctx, Plan{Name: c.Name, Slug: slug, Manifest: m})
}

// writeFile writes and syncs a staged file.
func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	return nil
}
