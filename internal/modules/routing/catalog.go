package routing

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/artprint-backend/internal/platform/apierr"
)

//go:embed styles.yaml
var embeddedCatalog []byte

// ModelJob is what the generation backend is asked to run.
type ModelJob struct {
	Model      string `yaml:"model"`
	UseAdapter bool   `yaml:"use_adapter"`
	AdapterKey string `yaml:"adapter_key"`
}

func (j ModelJob) String() string {
	if j.UseAdapter {
		return j.Model + "+" + j.AdapterKey
	}
	return j.Model
}

type PromptTemplates struct {
	WithAdapter    string `yaml:"with_adapter"`
	WithoutAdapter string `yaml:"without_adapter"`
}

type AdapterConfig struct {
	Key          string  `yaml:"-"`
	SourceRef    string  `yaml:"source_ref"`
	BlendScale   float64 `yaml:"blend_scale"`
	TriggerToken string  `yaml:"trigger_token"`
}

type StyleProfile struct {
	Key               string          `yaml:"-"`
	Primary           *ModelJob       `yaml:"primary"`
	Fallbacks         []ModelJob      `yaml:"fallbacks"`
	Override          *ModelJob       `yaml:"override"`
	OverrideThreshold int             `yaml:"override_threshold"`
	Prompts           PromptTemplates `yaml:"prompts"`
}

type catalogFile struct {
	Version         int                      `yaml:"version"`
	TextureCritical []string                 `yaml:"texture_critical"`
	Aliases         map[string]string        `yaml:"aliases"`
	DefaultPrompts  PromptTemplates          `yaml:"default_prompts"`
	Adapters        map[string]AdapterConfig `yaml:"adapters"`
	Styles          map[string]StyleProfile  `yaml:"styles"`
}

// Catalog is the style and adapter table. It is built once and never
// mutated, so a single instance is shared by all callers.
type Catalog struct {
	styles          map[string]StyleProfile
	adapters        map[string]AdapterConfig
	aliases         map[string]string
	textureCritical map[string]bool
	defaultPrompts  PromptTemplates
}

const defaultOverrideThreshold = 3

// LoadCatalog reads the catalog at path, or the embedded catalog when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	raw := embeddedCatalog
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, apierr.Configuration(fmt.Errorf("read style catalog %q: %w", p, err))
		}
		raw = b
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, apierr.Configuration(fmt.Errorf("parse style catalog: %w", err))
	}
	c := &Catalog{
		styles:          make(map[string]StyleProfile, len(f.Styles)),
		adapters:        make(map[string]AdapterConfig, len(f.Adapters)),
		aliases:         make(map[string]string, len(f.Aliases)),
		textureCritical: make(map[string]bool, len(f.TextureCritical)),
		defaultPrompts:  f.DefaultPrompts,
	}
	for k, a := range f.Adapters {
		key := NormalizeStyle(k)
		a.Key = key
		c.adapters[key] = a
	}
	for k, s := range f.Styles {
		key := NormalizeStyle(k)
		s.Key = key
		if s.Override != nil && s.OverrideThreshold <= 0 {
			s.OverrideThreshold = defaultOverrideThreshold
		}
		c.styles[key] = s
	}
	for from, to := range f.Aliases {
		c.aliases[NormalizeStyle(from)] = NormalizeStyle(to)
	}
	for _, k := range f.TextureCritical {
		c.textureCritical[NormalizeStyle(k)] = true
	}
	if err := c.validate(); err != nil {
		return nil, apierr.Configuration(err)
	}
	return c, nil
}

func (c *Catalog) validate() error {
	var errs []error
	checkJob := func(style, slot string, j ModelJob) {
		if strings.TrimSpace(j.Model) == "" {
			errs = append(errs, fmt.Errorf("style %q %s: model required", style, slot))
		}
		if j.UseAdapter && j.AdapterKey == "" {
			errs = append(errs, fmt.Errorf("style %q %s: use_adapter without adapter_key", style, slot))
		}
		if j.AdapterKey != "" {
			if _, ok := c.adapters[NormalizeStyle(j.AdapterKey)]; !ok {
				errs = append(errs, fmt.Errorf("style %q %s: unknown adapter %q", style, slot, j.AdapterKey))
			}
		}
	}
	for _, key := range sortedKeys(c.styles) {
		s := c.styles[key]
		if s.Primary != nil {
			checkJob(key, "primary", *s.Primary)
		}
		if s.Override != nil {
			checkJob(key, "override", *s.Override)
		}
		for i, fb := range s.Fallbacks {
			checkJob(key, fmt.Sprintf("fallbacks[%d]", i), fb)
		}
	}
	for k := range c.textureCritical {
		s, ok := c.styles[k]
		if !ok || s.Primary == nil {
			errs = append(errs, fmt.Errorf("texture-critical style %q must define a primary job", k))
		}
	}
	for from, to := range c.aliases {
		if _, ok := c.styles[to]; !ok {
			errs = append(errs, fmt.Errorf("alias %q points at unknown style %q", from, to))
		}
	}
	for k, a := range c.adapters {
		if strings.TrimSpace(a.SourceRef) == "" {
			errs = append(errs, fmt.Errorf("adapter %q: source_ref required", k))
		}
		if a.BlendScale <= 0 || a.BlendScale > 2 {
			errs = append(errs, fmt.Errorf("adapter %q: blend_scale %v out of range (0,2]", k, a.BlendScale))
		}
	}
	return errors.Join(errs...)
}

// NormalizeStyle lower-cases and folds spaces and hyphens to underscores.
func NormalizeStyle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func (c *Catalog) resolve(style string) (StyleProfile, bool) {
	if c == nil {
		return StyleProfile{}, false
	}
	key := NormalizeStyle(style)
	if to, ok := c.aliases[key]; ok {
		key = to
	}
	s, ok := c.styles[key]
	return s, ok
}

func (c *Catalog) Style(style string) (StyleProfile, bool) {
	s, ok := c.resolve(style)
	if !ok {
		return StyleProfile{}, false
	}
	s.Fallbacks = append([]ModelJob(nil), s.Fallbacks...)
	return s, true
}

func (c *Catalog) Styles() []string {
	if c == nil {
		return nil
	}
	return sortedKeys(c.styles)
}

func (c *Catalog) IsTextureCritical(style string) bool {
	s, ok := c.resolve(style)
	return ok && c.textureCritical[s.Key]
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
