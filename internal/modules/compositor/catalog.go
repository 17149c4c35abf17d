package compositor

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

//go:embed printspecs.yaml
var embeddedSpecs []byte

const (
	FormatPNG  = "png"
	FormatTIFF = "tiff"
)

// PrintSpec is a physical product. Pixel dimensions are derived.
type PrintSpec struct {
	SizeID   string
	WidthMM  float64
	HeightMM float64
	DPI      int
	SKURef   string
	BorderMM float64
	Format   string
}

// PixelSize is the full print canvas in pixels at the spec's own DPI.
func (s PrintSpec) PixelSize() (int, int) {
	g, err := ComputeGeometry(s.WidthMM, s.HeightMM, 0, s.DPI)
	if err != nil {
		return 0, 0
	}
	return g.PrintW, g.PrintH
}

type specEntry struct {
	WidthMM  float64  `yaml:"width_mm"`
	HeightMM float64  `yaml:"height_mm"`
	DPI      int      `yaml:"dpi"`
	SKURef   string   `yaml:"sku_ref"`
	BorderMM *float64 `yaml:"border_mm"`
	Format   string   `yaml:"format"`
}

type specFile struct {
	Version  int `yaml:"version"`
	Defaults struct {
		DPI      int     `yaml:"dpi"`
		BorderMM float64 `yaml:"border_mm"`
		Format   string  `yaml:"format"`
	} `yaml:"defaults"`
	Sizes map[string]specEntry `yaml:"sizes"`
}

// Catalog holds the print specs by size id; immutable after load.
type Catalog struct {
	specs map[string]PrintSpec
}

func LoadPrintSpecs(path string) (*Catalog, error) {
	raw := embeddedSpecs
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, apierr.Configuration(fmt.Errorf("read print spec catalog %q: %w", p, err))
		}
		raw = b
	}
	return ParsePrintSpecs(raw)
}

func ParsePrintSpecs(raw []byte) (*Catalog, error) {
	var f specFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, apierr.Configuration(fmt.Errorf("parse print spec catalog: %w", err))
	}
	c := &Catalog{specs: make(map[string]PrintSpec, len(f.Sizes))}
	var errs []error
	for id, e := range f.Sizes {
		s := PrintSpec{
			SizeID:   normalizeSizeID(id),
			WidthMM:  e.WidthMM,
			HeightMM: e.HeightMM,
			DPI:      e.DPI,
			SKURef:   strings.TrimSpace(e.SKURef),
			BorderMM: f.Defaults.BorderMM,
			Format:   strings.ToLower(strings.TrimSpace(e.Format)),
		}
		if s.DPI == 0 {
			s.DPI = f.Defaults.DPI
		}
		if e.BorderMM != nil {
			s.BorderMM = *e.BorderMM
		}
		if s.Format == "" {
			s.Format = strings.ToLower(strings.TrimSpace(f.Defaults.Format))
		}
		if s.Format == "" {
			s.Format = FormatPNG
		}
		if err := validateSpec(s); err != nil {
			errs = append(errs, err)
			continue
		}
		c.specs[s.SizeID] = s
	}
	if err := errors.Join(errs...); err != nil {
		return nil, apierr.Configuration(err)
	}
	return c, nil
}

func validateSpec(s PrintSpec) error {
	if s.SKURef == "" {
		return fmt.Errorf("size %q: sku_ref required", s.SizeID)
	}
	if s.Format != FormatPNG && s.Format != FormatTIFF {
		return fmt.Errorf("size %q: unsupported format %q", s.SizeID, s.Format)
	}
	if _, err := ComputeGeometry(s.WidthMM, s.HeightMM, s.BorderMM, s.DPI); err != nil {
		return fmt.Errorf("size %q: %w", s.SizeID, err)
	}
	return nil
}

func normalizeSizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (c *Catalog) Lookup(sizeID string) (PrintSpec, bool) {
	if c == nil {
		return PrintSpec{}, false
	}
	s, ok := c.specs[normalizeSizeID(sizeID)]
	return s, ok
}

func (c *Catalog) SizeIDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.specs))
	for id := range c.specs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
