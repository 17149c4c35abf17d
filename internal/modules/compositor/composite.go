// Package compositor turns generated artwork into exact-size, bordered,
// print-grade rasters for a physical product.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"regexp"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/yungbote/artprint-backend/internal/observability"
	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/platform/logger"
)

const defaultMaxSourcePixels int64 = 120_000_000

// Paper is the background used for borders and letterbox gaps.
var Paper = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

type PrintAsset struct {
	OrderRef    string
	SizeID      string
	Buffer      []byte
	Width       int
	Height      int
	DPI         int
	Filename    string
	ContentType string
}

// DecodeError means the source bytes are not a usable image.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s source: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode source: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Options struct {
	MaxSourcePixels int64
	Background      color.Color
}

type Compositor struct {
	log        *logger.Logger
	maxPixels  int64
	background color.Color
}

func New(log *logger.Logger, opts Options) *Compositor {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.MaxSourcePixels <= 0 {
		opts.MaxSourcePixels = defaultMaxSourcePixels
	}
	if opts.Background == nil {
		opts.Background = Paper
	}
	return &Compositor{
		log:        log.With("service", "PrintCompositor"),
		maxPixels:  opts.MaxSourcePixels,
		background: opaque(opts.Background),
	}
}

// Composite renders src onto spec's print canvas at dpi with a borderMM
// margin. Output size always equals the computed print pixel size.
func (c *Compositor) Composite(src []byte, spec PrintSpec, borderMM float64, dpi int, orderRef string) (*PrintAsset, error) {
	start := time.Now()
	asset, stage, err := c.composite(src, spec, borderMM, dpi, orderRef)
	if err != nil {
		observability.Current().ObserveCompositeFailure(stage)
		c.log.Warn("composite failed", "order_ref", orderRef, "size_id", spec.SizeID, "stage", stage, "error", err)
		return nil, err
	}
	observability.Current().ObserveComposite(spec.SizeID, time.Since(start))
	c.log.Debug("composite ok",
		"order_ref", orderRef,
		"size_id", spec.SizeID,
		"width", asset.Width,
		"height", asset.Height,
		"bytes", len(asset.Buffer),
	)
	return asset, nil
}

func (c *Compositor) composite(src []byte, spec PrintSpec, borderMM float64, dpi int, orderRef string) (*PrintAsset, string, error) {
	format := strings.ToLower(strings.TrimSpace(spec.Format))
	switch format {
	case "":
		format = FormatPNG
	case FormatPNG, FormatTIFF:
	default:
		return nil, "format", apierr.Configuration(fmt.Errorf("print spec %q: unsupported output format %q", spec.SizeID, spec.Format))
	}
	g, err := ComputeGeometry(spec.WidthMM, spec.HeightMM, borderMM, dpi)
	if err != nil {
		return nil, "geometry", apierr.Configuration(fmt.Errorf("print spec %q: %w", spec.SizeID, err))
	}
	img, err := decodeSource(src, c.maxPixels)
	if err != nil {
		return nil, "decode", apierr.Decode(err)
	}

	l := FitLayout(img.Bounds().Dx(), img.Bounds().Dy(), g)
	canvas := render(img, g, l, c.background)

	buf, contentType, err := encode(canvas, format, dpi)
	if err != nil {
		return nil, "encode", apierr.Render(err)
	}
	return &PrintAsset{
		OrderRef:    orderRef,
		SizeID:      spec.SizeID,
		Buffer:      buf,
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
		DPI:         dpi,
		Filename:    Filename(orderRef, spec.SizeID, dpi, format),
		ContentType: contentType,
	}, "", nil
}

func decodeSource(src []byte, maxPixels int64) (image.Image, error) {
	if len(src) == 0 {
		return nil, &DecodeError{Err: errors.New("empty source")}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)}
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("source %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)}
	}
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	return img, nil
}

// render scales the source into its layout box, flattened onto the
// background, then places it on the full print canvas.
func render(img image.Image, g Geometry, l Layout, bg color.Color) *image.RGBA {
	scaled := image.NewRGBA(image.Rect(0, 0, l.ScaledW, l.ScaledH))
	draw.Draw(scaled, scaled.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	dc := gg.NewContext(g.PrintW, g.PrintH)
	dc.SetColor(bg)
	dc.Clear()
	dc.DrawImage(scaled, l.OffsetX, l.OffsetY)

	return exactSize(dc.Image(), g.PrintW, g.PrintH, bg)
}

// exactSize crops or pads img to w x h from its top-left corner.
func exactSize(img image.Image, w, h int, bg color.Color) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && b.Dx() == w && b.Dy() == h {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func opaque(c color.Color) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = 255
	return n
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Filename is the deterministic name of a composited asset.
func Filename(orderRef, sizeID string, dpi int, format string) string {
	ref := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(orderRef), "-"), "-")
	if ref == "" {
		ref = "order"
	}
	size := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(sizeID), "-"), "-")
	if size == "" {
		size = "custom"
	}
	ext := "png"
	if format == FormatTIFF {
		ext = "tif"
	}
	return fmt.Sprintf("%s_%s_%ddpi.%s", ref, size, dpi, ext)
}
