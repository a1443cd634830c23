package display

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/tartampluch/card-countdown/internal/config"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// cardImagePath maps the stored reference ("/images/x.bmp" or "x.bmp")
// to a file inside dir. Only the base name is kept.
func cardImagePath(dir, ref string) string {
	if ref == "" || dir == "" {
		return ""
	}
	name := filepath.Base(filepath.Clean("/" + ref))
	if name == "/" || name == "." {
		return ""
	}
	return filepath.Join(dir, name)
}

// loadCardImage decodes a BMP and scales it to fit inside box, keeping the
// aspect ratio.
func loadCardImage(path string, box image.Point) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	src, err := bmp.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrImageDecode, err)
	}
	return fitImage(src, box), nil
}

func fitImage(src image.Image, box image.Point) image.Image {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || box.X <= 0 || box.Y <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	w, h := box.X, b.Dy()*box.X/b.Dx()
	if h > box.Y {
		w, h = b.Dx()*box.Y/b.Dy(), box.Y
	}
	w, h = max(w, 1), max(h, 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
