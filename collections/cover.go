// cover.go implements the collection cover-art generator, spec.md
// §4.4 "Cover generation": a compositional layout over up to 9 poster
// tiles with a textual badge, tolerant of missing posters. Grounded on
// the teacher's use of golang.org/x/image for raster composition
// (already a teacher dependency), generalized from single-image
// thumbnailing onto a multi-tile collage.
package collections

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"mediabridge/storage/models"
)

const (
	coverWidth  = 960
	coverHeight = 540
	tileGutter  = 4
)

// CoverGenerator composes collection cover art from up to 9 sample
// posters plus a type-derived badge.
type CoverGenerator struct {
	// FetchPoster retrieves the raw image bytes for a poster URL; a
	// nil or failing entry is tolerated per spec.md §4.4.
	FetchPoster func(url string) ([]byte, error)
	// badgeFace renders the badge text; CJK-capable when a font was
	// loaded from the fonts directory, spec.md §6 "A cover-generator
	// font directory populated on first run from a fonts bundle",
	// otherwise the bundled ASCII-only basicfont.
	badgeFace font.Face
}

func NewCoverGenerator() *CoverGenerator {
	return &CoverGenerator{FetchPoster: defaultFetchPoster, badgeFace: basicfont.Face7x13}
}

// NewCoverGeneratorWithFont loads a CJK-capable font from fontPath
// (an OpenType/TrueType file under AppConfig.FontsDir) so the badge
// text ("榜单"/"混合"/"推荐"/"热榜") renders correctly; falls back to
// the ASCII basicfont if the file is missing or unparsable.
func NewCoverGeneratorWithFont(fontPath string) *CoverGenerator {
	g := NewCoverGenerator()
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return g
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return g
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 28, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return g
	}
	g.badgeFace = face
	return g
}

func defaultFetchPoster(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Badge renders the textual overlay spec.md §4.4 derives from the
// collection type: "榜单"/"混合"/"推荐"/"热榜"/item count.
func Badge(t models.CollectionType, itemCount int) string {
	switch t {
	case models.CollectionTypeList:
		return "榜单"
	case models.CollectionTypeAIRecommendation, models.CollectionTypeAIRecommendationGlobal:
		return "推荐"
	case models.CollectionTypeFilter:
		if itemCount > 100 {
			return "热榜"
		}
		return fmt.Sprintf("%d部", itemCount)
	default:
		return "混合"
	}
}

// Generate composes a JPEG cover from up to 9 poster URLs and a badge
// string. Generate is a pure function of its inputs: given the same
// posterURLs and badge it always produces the same bytes (modulo the
// JPEG encoder, which is itself deterministic for fixed input).
func (g *CoverGenerator) Generate(posterURLs []string, badge string) ([]byte, error) {
	if len(posterURLs) > 9 {
		posterURLs = posterURLs[:9]
	}
	canvas := image.NewRGBA(image.Rect(0, 0, coverWidth, coverHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{20, 20, 24, 255}), image.Point{}, draw.Src)

	cols, rows := tileGrid(len(posterURLs))
	if cols > 0 {
		tileW := coverWidth / cols
		tileH := coverHeight / rows
		for i, url := range posterURLs {
			tile := g.loadTile(url, tileW-tileGutter, tileH-tileGutter)
			if tile == nil {
				continue
			}
			x := (i % cols) * tileW
			y := (i / cols) * tileH
			draw.Draw(canvas, image.Rect(x, y, x+tileW-tileGutter, y+tileH-tileGutter), tile, image.Point{}, draw.Over)
		}
	}

	g.drawBadge(canvas, badge)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("collections: encoding cover jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// tileGrid picks a near-square grid that fits n posters, n in [0,9].
func tileGrid(n int) (cols, rows int) {
	switch {
	case n == 0:
		return 0, 0
	case n <= 1:
		return 1, 1
	case n <= 2:
		return 2, 1
	case n <= 4:
		return 2, 2
	case n <= 6:
		return 3, 2
	default:
		return 3, 3
	}
}

// loadTile fetches and scales one poster, tolerating a missing or
// unfetchable poster by returning nil (spec.md §4.4 "must tolerate
// missing posters").
func (g *CoverGenerator) loadTile(url string, w, h int) image.Image {
	if url == "" || g.FetchPoster == nil {
		return nil
	}
	raw, err := g.FetchPoster(url)
	if err != nil {
		return nil
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	return scaleNearest(src, w, h)
}

// scaleNearest is a simple nearest-neighbor resize, sufficient for a
// small collage tile where the decoded poster itself already carries
// photographic detail.
func scaleNearest(src image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return nil
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// drawBadge overlays the badge string bottom-left in a translucent bar.
func (g *CoverGenerator) drawBadge(canvas *image.RGBA, badge string) {
	barHeight := 48
	bar := image.Rect(0, coverHeight-barHeight, coverWidth, coverHeight)
	draw.Draw(canvas, bar, image.NewUniform(color.RGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: g.badgeFace,
		Dot:  fixed.P(16, coverHeight-barHeight/2+4),
	}
	d.DrawString(badge)
}
