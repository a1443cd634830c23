// Package display turns engine frames into monochrome panel images.
//
// Frames are composed with fyne canvas objects on a headless software canvas,
// dithered to black and white, written as PNG for the panel driver and
// published to the HTTP frame feed.
package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/software"
	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
	"github.com/tartampluch/card-countdown/internal/store"
	"golang.org/x/image/draw"
)

// Layout reference: the panel is designed on an 800x480 grid and scaled.
const (
	refWidth  = 800
	refHeight = 480

	sizeHuge   = 96
	sizeTitle  = 44
	sizeHeader = 34
	sizeBody   = 22
	sizeSmall  = 17
)

// monochrome is the panel palette. Index 0 is paper.
var monochrome = color.Palette{color.White, color.Black}

// Publisher receives every encoded frame.
type Publisher interface {
	Update(data []byte)
}

// Options configures a Renderer.
type Options struct {
	Width      int
	Height     int
	OutputPath string
	ImagesDir  string
	Language   string
	Publisher  Publisher
}

// Renderer draws frames off-screen. It implements engine.Renderer.
type Renderer struct {
	mu     sync.Mutex
	opts   Options
	labels *Labels
	log    *slog.Logger
}

// NewRenderer prepares the headless fyne driver used for composition.
func NewRenderer(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = config.DefaultFrameWidth
	}
	if opts.Height <= 0 {
		opts.Height = config.DefaultFrameHeight
	}
	startHeadless()
	return &Renderer{
		opts:   opts,
		labels: NewLabels(opts.Language),
		log:    slog.With(config.LogKeyComponent, config.CompDisplay),
	}
}

// Show renders f, writes it to the output path and publishes it.
func (r *Renderer) Show(ctx context.Context, f engine.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	img := r.Compose(f)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("%s: %w", config.ErrRender, err)
	}
	data := buf.Bytes()

	if r.opts.OutputPath != "" {
		if err := store.WriteFileAtomic(r.opts.OutputPath, data, config.FilePermShared); err != nil {
			return fmt.Errorf("%s: %w", config.ErrFrameWrite, err)
		}
	}
	if r.opts.Publisher != nil {
		r.opts.Publisher.Update(data)
	}

	r.log.Debug(config.MsgFrameWritten,
		config.LogKeyEvent, f.Kind.String(),
		config.LogKeyPath, r.opts.OutputPath,
		config.LogKeySizeBytes, len(data),
		config.LogKeyDuration, time.Since(start).Milliseconds(),
	)
	return nil
}

// Compose draws f and returns the dithered two-colour image.
func (r *Renderer) Compose(f engine.Frame) *image.Paletted {
	var captured image.Image
	fyne.DoAndWait(func() {
		c := software.NewCanvas()
		c.SetPadded(false)
		c.SetContent(r.layout(f))
		c.Resize(fyne.NewSize(float32(r.opts.Width), float32(r.opts.Height)))
		captured = c.Capture()
	})

	out := image.NewPaletted(image.Rect(0, 0, r.opts.Width, r.opts.Height), monochrome)
	draw.FloydSteinberg.Draw(out, out.Bounds(), captured, captured.Bounds().Min)
	return out
}

func (r *Renderer) layout(f engine.Frame) fyne.CanvasObject {
	objs := []fyne.CanvasObject{r.rect(0, 0, refWidth, refHeight, color.White, nil)}
	objs = append(objs, r.border()...)

	l := r.labels
	switch f.Kind {
	case engine.FrameWelcome:
		objs = append(objs,
			r.centered(l.Text(config.TKeyWelcomeTitle, config.FallbackWelcomeTitle), 200, sizeTitle, true),
			r.centered(l.Text(config.TKeyWelcomeHint, config.FallbackWelcomeHint), 280, sizeBody, false),
			r.centered(l.Text(config.TKeyWelcomeSetup, config.FallbackWelcomeSetup), 350, sizeSmall, false),
		)
	case engine.FrameNoCard:
		objs = append(objs,
			r.centered(l.Text(config.TKeyNoCardTitle, config.FallbackNoCardTitle), 220, sizeHeader, true),
			r.centered(l.Text(config.TKeyNoCardHint1, config.FallbackNoCardHint1), 280, sizeBody, false),
			r.centered(l.Text(config.TKeyNoCardHint2, config.FallbackNoCardHint2), 320, sizeBody, false),
		)
	case engine.FrameError:
		id := f.MessageID
		if id == "" {
			id = config.TKeyInvalidDate
		}
		objs = append(objs,
			r.centered(l.Text(config.TKeyErrorTitle, config.FallbackErrorTitle), 200, sizeHeader, true),
			r.centered(l.Text(id, config.FallbackInvalidDate), 280, sizeBody, false),
		)
	case engine.FrameCountdown:
		if pic := r.cardImage(f.ImagePath); pic != nil {
			objs = append(objs, pic)
		}
		days := f.DaysRemaining
		if days < 0 {
			days = -days
		}
		objs = append(objs,
			r.centered(f.Name, 100, sizeHeader, true),
			r.centered(strconv.Itoa(days), 240, sizeHuge, true),
			r.centered(l.DaysLabel(f.DaysRemaining), 290, sizeHeader, true),
			r.centered(l.Date(f.TargetDate), 360, sizeBody, false),
		)
	}

	return container.NewWithoutLayout(objs...)
}

// centered places a text line whose baseline sits at y on the reference grid.
func (r *Renderer) centered(s string, y, size float32, bold bool) fyne.CanvasObject {
	t := canvas.NewText(s, color.Black)
	t.TextSize = size * r.scale()
	t.TextStyle = fyne.TextStyle{Bold: bold}
	t.Alignment = fyne.TextAlignCenter

	h := t.MinSize().Height
	t.Move(fyne.NewPos(0, (y-size)*r.scaleY()))
	t.Resize(fyne.NewSize(float32(r.opts.Width), h))
	return t
}

func (r *Renderer) border() []fyne.CanvasObject {
	return []fyne.CanvasObject{
		r.rect(10, 10, 780, 460, color.Transparent, color.Black),
		r.rect(12, 12, 776, 456, color.Transparent, color.Black),
	}
}

func (r *Renderer) rect(x, y, w, h float32, fill, stroke color.Color) *canvas.Rectangle {
	rc := canvas.NewRectangle(fill)
	if stroke != nil {
		rc.StrokeColor = stroke
		rc.StrokeWidth = 1
	}
	rc.Move(fyne.NewPos(x*r.scaleX(), y*r.scaleY()))
	rc.Resize(fyne.NewSize(w*r.scaleX(), h*r.scaleY()))
	return rc
}

// cardImage loads the optional picture into the left margin.
func (r *Renderer) cardImage(ref string) fyne.CanvasObject {
	path := cardImagePath(r.opts.ImagesDir, ref)
	if path == "" {
		return nil
	}

	box := image.Pt(int(180*r.scaleX()), int(300*r.scaleY()))
	src, err := loadCardImage(path, box)
	if err != nil {
		r.log.Warn(config.MsgCardImage,
			config.LogKeyFile, path,
			config.LogKeyError, err,
		)
		return nil
	}

	img := canvas.NewImageFromImage(src)
	img.FillMode = canvas.ImageFillOriginal
	img.ScaleMode = canvas.ImageScalePixels
	size := src.Bounds().Size()
	img.Move(fyne.NewPos(30*r.scaleX(), (refHeight*r.scaleY()-float32(size.Y))/2))
	img.Resize(fyne.NewSize(float32(size.X), float32(size.Y)))
	return img
}

func (r *Renderer) scaleX() float32 { return float32(r.opts.Width) / refWidth }
func (r *Renderer) scaleY() float32 { return float32(r.opts.Height) / refHeight }

// scale sizes fonts by the tighter axis.
func (r *Renderer) scale() float32 {
	return min(r.scaleX(), r.scaleY())
}
