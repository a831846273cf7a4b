// Package rubric loads the versioned scoring rubrics used as analysis
// instructions. Rubrics live in a YAML manifest next to their prompt files and
// are selected per call by a bucket key.
package rubric

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"call-insights-go/internal/types"
)

const manifestFile = "rubrics.yaml"

//go:embed assets
var assets embed.FS

// ErrUnknownBucket is returned when a bucket key names no rubric.
var ErrUnknownBucket = errors.New("unknown bucket")

// Band is the threshold class of a total score.
type Band string

const (
	BandExcellent Band = "excellent"
	BandAtRisk    Band = "at_risk"
	BandBad       Band = "bad"
	BandUnscored  Band = "unscored"
)

type Thresholds struct {
	Excellent float64 `yaml:"excellent"`
	AtRisk    float64 `yaml:"at_risk"`
}

type Rubric struct {
	Key         string             `yaml:"key"`
	Version     string             `yaml:"version"`
	Kind        types.AnalysisKind `yaml:"kind"`
	PromptFile  string             `yaml:"prompt"`
	Aliases     []string           `yaml:"aliases"`
	Aggregation string             `yaml:"aggregation"`
	Weights     map[string]int     `yaml:"weights"`
	Thresholds  Thresholds         `yaml:"thresholds"`

	// Prompt is the instruction text read from PromptFile.
	Prompt string `yaml:"-"`
}

// Band classifies a model-provided total against the rubric thresholds.
func (r *Rubric) Band(total float64) Band {
	if r.Kind != types.KindBucket {
		return BandUnscored
	}
	switch {
	case total >= r.Thresholds.Excellent:
		return BandExcellent
	case total >= r.Thresholds.AtRisk:
		return BandAtRisk
	default:
		return BandBad
	}
}

type manifest struct {
	Default string    `yaml:"default"`
	Rubrics []*Rubric `yaml:"rubrics"`
}

// Catalog is the set of loaded rubrics. Safe for concurrent use; Reload swaps
// the contents atomically.
type Catalog struct {
	mu         sync.RWMutex
	byKey      map[string]*Rubric
	defaultKey string
}

// Default loads the rubrics compiled into the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads rubrics from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Load reads the manifest and every prompt it references from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Reload(fsys); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the catalog contents. On error the old contents are kept.
func (c *Catalog) Reload(fsys fs.FS) error {
	byKey, def, err := parse(fsys)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.byKey = byKey
	c.defaultKey = def
	c.mu.Unlock()
	return nil
}

func parse(fsys fs.FS) (map[string]*Rubric, string, error) {
	raw, err := fs.ReadFile(fsys, manifestFile)
	if err != nil {
		return nil, "", fmt.Errorf("read rubric manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, "", fmt.Errorf("parse rubric manifest: %w", err)
	}
	if len(m.Rubrics) == 0 {
		return nil, "", errors.New("rubric manifest lists no rubrics")
	}

	byKey := make(map[string]*Rubric)
	for _, r := range m.Rubrics {
		if err := r.validate(); err != nil {
			return nil, "", err
		}
		prompt, err := fs.ReadFile(fsys, r.PromptFile)
		if err != nil {
			return nil, "", fmt.Errorf("rubric %s: read prompt: %w", r.Key, err)
		}
		r.Prompt = strings.TrimSpace(string(prompt))
		if r.Prompt == "" {
			return nil, "", fmt.Errorf("rubric %s: prompt %s is empty", r.Key, r.PromptFile)
		}
		for _, name := range append([]string{r.Key}, r.Aliases...) {
			name = normalize(name)
			if _, dup := byKey[name]; dup {
				return nil, "", fmt.Errorf("rubric key %q declared twice", name)
			}
			byKey[name] = r
		}
	}

	def := normalize(m.Default)
	if _, ok := byKey[def]; !ok {
		return nil, "", fmt.Errorf("default rubric %q not declared", m.Default)
	}
	return byKey, def, nil
}

func (r *Rubric) validate() error {
	if r.Key == "" {
		return errors.New("rubric without key")
	}
	if r.Version == "" {
		return fmt.Errorf("rubric %s: version is required", r.Key)
	}
	if r.PromptFile == "" {
		return fmt.Errorf("rubric %s: prompt file is required", r.Key)
	}
	switch r.Kind {
	case types.KindGeneric:
		return nil
	case types.KindBucket:
	default:
		return fmt.Errorf("rubric %s: unknown kind %q", r.Key, r.Kind)
	}

	switch r.Aggregation {
	case "average", "weighted":
	default:
		return fmt.Errorf("rubric %s: aggregation must be average or weighted, got %q", r.Key, r.Aggregation)
	}
	if r.Aggregation == "weighted" && len(r.Weights) == 0 {
		return fmt.Errorf("rubric %s: weighted aggregation needs weights", r.Key)
	}
	if len(r.Weights) > 0 {
		sum := 0
		for _, w := range r.Weights {
			sum += w
		}
		if sum != 100 {
			return fmt.Errorf("rubric %s: weights sum to %d, want 100", r.Key, sum)
		}
	}
	if r.Thresholds.AtRisk <= 0 || r.Thresholds.Excellent <= r.Thresholds.AtRisk || r.Thresholds.Excellent > 10 {
		return fmt.Errorf("rubric %s: thresholds must satisfy 0 < at_risk < excellent <= 10", r.Key)
	}
	return nil
}

// Get resolves a bucket key or alias. An empty bucket selects the default rubric.
func (c *Catalog) Get(bucket string) (*Rubric, error) {
	key := normalize(bucket)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if key == "" {
		key = c.defaultKey
	}
	r, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	return r, nil
}

// Keys lists canonical rubric keys, sorted.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	var keys []string
	for _, r := range c.byKey {
		if !seen[r.Key] {
			seen[r.Key] = true
			keys = append(keys, r.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
