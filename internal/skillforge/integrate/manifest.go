package integrate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/a-marczewski/skillforge/internal/skillforge/evaluate"
	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

const (
	// ManifestFile is the name the host skill loader looks for.
	ManifestFile = "SKILL.toml"
	// InstructionsFile holds the human-readable skill description.
	InstructionsFile = "SKILL.md"
	// InitialVersion is assigned to every newly integrated skill.
	InitialVersion = "0.1.0"
)

// Manifest is the on-disk skill description. Fields are only ever added.
type Manifest struct {
	Skill SkillSection  `toml:"skill"`
	Forge *ForgeSection `toml:"forge,omitempty"`
}

// SkillSection describes the skill itself.
type SkillSection struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Version     string   `toml:"version"`
	Author      string   `toml:"author,omitempty"`
	SourceURL   string   `toml:"source_url"`
	License     string   `toml:"license,omitempty"`
	Tags        []string `toml:"tags,omitempty"`
}

// ForgeSection records how and when the skill was discovered.
type ForgeSection struct {
	Score          float64   `toml:"score"`
	Recommendation string    `toml:"recommendation"`
	DiscoveredVia  string    `toml:"discovered_via"`
	IntegratedAt   time.Time `toml:"integrated_at"`
	RunID          string    `toml:"run_id,omitempty"`
}

// NewManifest builds a manifest from a candidate. It fails with
// ErrMissingMetadata when name, source URL or description is absent.
func NewManifest(c scout.Candidate) (Manifest, error) {
	name := strings.TrimSpace(c.Name)
	desc := strings.TrimSpace(c.Metadata.String(scout.MetaDescription))

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.SourceURL) == "" {
		missing = append(missing, "source_url")
	}
	if desc == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return Manifest{}, fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}

	return Manifest{
		Skill: SkillSection{
			Name:        name,
			Description: desc,
			Version:     InitialVersion,
			Author:      c.Metadata.String(scout.MetaOwner),
			SourceURL:   strings.TrimSpace(c.SourceURL),
			License:     c.Metadata.String(scout.MetaLicense),
			Tags:        splitTags(c.Metadata.String(scout.MetaTopics)),
		},
	}, nil
}

// NewResultManifest builds a manifest for an evaluated candidate, including
// the forge section.
func NewResultManifest(res evaluate.EvalResult, runID string, integratedAt time.Time) (Manifest, error) {
	m, err := NewManifest(res.Candidate)
	if err != nil {
		return Manifest{}, err
	}
	m.Forge = &ForgeSection{
		Score:          res.Score,
		Recommendation: res.Recommendation.String(),
		DiscoveredVia:  res.Candidate.Source,
		IntegratedAt:   integratedAt.UTC().Truncate(time.Second),
		RunID:          runID,
	}
	return m, nil
}

// Instructions renders the SKILL.md companion file.
func (m Manifest) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", m.Skill.Name, m.Skill.Description)
	fmt.Fprintf(&b, "- Source: %s\n", m.Skill.SourceURL)
	if m.Skill.Author != "" {
		fmt.Fprintf(&b, "- Author: %s\n", m.Skill.Author)
	}
	if m.Skill.License != "" {
		fmt.Fprintf(&b, "- License: %s\n", m.Skill.License)
	}
	if m.Forge != nil {
		fmt.Fprintf(&b, "- Discovered via: %s (score %.2f)\n", m.Forge.DiscoveredVia, m.Forge.Score)
	}
	return b.String()
}

// LoadManifest reads a SKILL.toml file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// List returns the manifests found directly under outputDir, sorted by
// directory name. Directories without a manifest are ignored.
func List(outputDir string) ([]Manifest, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Manifest
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		m, err := LoadManifest(filepath.Join(outputDir, entry.Name(), ManifestFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func splitTags(topics string) []string {
	if topics == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(topics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
