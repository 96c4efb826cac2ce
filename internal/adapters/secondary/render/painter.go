package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

// Le layout est pensé pour 320px de large puis mis à l'échelle
const baseWidth = 320

const maxRows = 6

var (
	colorBackground = color.RGBA{0x27, 0x21, 0x3C, 0xff}
	colorAccent     = color.RGBA{0xFF, 0x6B, 0x35, 0xff}
	colorText       = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorMuted      = color.RGBA{0xaa, 0xaa, 0xaa, 0xff}
	colorDivider    = color.NRGBA{0xFF, 0x6B, 0x35, 0x33} // accent à 20%
)

// AvatarSize est le côté en pixels d'un avatar pour une largeur de canvas
func AvatarSize(width int) int {
	return int(math.Round(24 * float64(width) / baseWidth))
}

type faces struct {
	title  font.Face
	label  font.Face
	track  font.Face
	handle font.Face
	desc   font.Face
	time   font.Face
}

// Painter dessine la frame PiP. Les font.Face ne sont pas utilisables en
// parallèle, d'où le mutex.
type Painter struct {
	width   int
	height  int
	scale   float64
	avatars *ImageCache

	mu    sync.Mutex
	faces faces
}

func NewPainter(width, height int, avatars *ImageCache) (*Painter, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}

	p := &Painter{
		width:   width,
		height:  height,
		scale:   float64(width) / baseWidth,
		avatars: avatars,
	}

	specs := []struct {
		dst  *font.Face
		font *opentype.Font
		size float64
	}{
		{&p.faces.title, bold, 20},
		{&p.faces.label, regular, 12},
		{&p.faces.track, regular, 11},
		{&p.faces.handle, bold, 10},
		{&p.faces.desc, regular, 9},
		{&p.faces.time, regular, 8},
	}
	for _, s := range specs {
		face, err := opentype.NewFace(s.font, &opentype.FaceOptions{
			Size:    s.size * p.scale,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("new face: %w", err)
		}
		*s.dst = face
	}
	return p, nil
}

func (p *Painter) Paint(ctx context.Context, scene ports.Scene) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	p.fill(img, img.Bounds(), colorBackground)

	// En-tête
	p.textCentered(img, p.faces.title, colorAccent, "Activity Feed", 25)
	p.fill(img, p.rect(20, 35, float64(baseWidth)-20, 37), colorAccent)

	p.text(img, p.faces.label, colorText, "Now Playing:", 20, 55)
	p.text(img, p.faces.track, colorAccent, scene.NowPlaying, 20, 70)
	p.text(img, p.faces.label, colorText, "Recent Activity:", 20, 90)

	events := scene.Events
	if len(events) > maxRows {
		events = events[:maxRows]
	}

	if len(events) == 0 {
		msg := "No recent activities"
		if scene.Loading {
			msg = "Loading activity stream..."
		}
		p.textCentered(img, p.faces.label, colorText, msg, 150)
		return img, nil
	}

	for i, e := range events {
		y := float64(105 + i*40)
		p.avatar(ctx, img, e.Player.PFP, y)

		p.text(img, p.faces.handle, colorAccent, e.Handle(), 48, y)
		p.text(img, p.faces.desc, colorText, e.ShortDescription(), 48, y+14)
		p.text(img, p.faces.time, colorMuted, humanize.RelTime(e.Time(), scene.Now, "ago", "from now"), 48, y+25)

		line := p.rect(20, y+31, float64(baseWidth)-20, y+31.5)
		if line.Dy() == 0 {
			line.Max.Y++
		}
		p.fill(img, line, colorDivider)
	}
	return img, nil
}

// avatar dessine le cercle orange puis, si l'image est en cache, la
// photo découpée dans le cercle intérieur.
func (p *Painter) avatar(ctx context.Context, img *image.RGBA, pfp string, y float64) {
	center := image.Pt(p.px(28), p.px(y-2))
	outer := &circle{center: center, radius: p.px(12)}
	draw.DrawMask(img, outer.Bounds(), image.NewUniform(colorAccent), image.Point{}, outer, outer.Bounds().Min, draw.Over)

	url := domain.AvatarURL(pfp, 24)
	if url == "" || p.avatars == nil {
		return
	}
	photo, ok := p.avatars.Get(ctx, url)
	if !ok {
		return
	}

	inner := &circle{center: center, radius: p.px(11)}
	size := photo.Bounds().Size()
	dst := image.Rectangle{Min: image.Pt(p.px(16), p.px(y-14))}
	dst.Max = dst.Min.Add(size)
	draw.DrawMask(img, dst, photo, photo.Bounds().Min, inner, dst.Min, draw.Over)
}

func (p *Painter) text(img *image.RGBA, face font.Face, c color.Color, s string, x, y float64) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(p.px(x), p.px(y)),
	}
	d.DrawString(s)
}

func (p *Painter) textCentered(img *image.RGBA, face font.Face, c color.Color, s string, y float64) {
	width := font.MeasureString(face, s).Round()
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P((p.width-width)/2, p.px(y)),
	}
	d.DrawString(s)
}

func (p *Painter) fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

// rect convertit des coordonnées du layout 320px en pixels
func (p *Painter) rect(x0, y0, x1, y1 float64) image.Rectangle {
	return image.Rect(p.px(x0), p.px(y0), p.px(x1), p.px(y1))
}

func (p *Painter) px(v float64) int {
	return int(math.Round(v * p.scale))
}

// circle est un masque alpha plein
type circle struct {
	center image.Point
	radius int
}

func (c *circle) ColorModel() color.Model {
	return color.AlphaModel
}

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.radius, c.center.Y-c.radius, c.center.X+c.radius, c.center.Y+c.radius)
}

func (c *circle) At(x, y int) color.Color {
	dx := float64(x-c.center.X) + 0.5
	dy := float64(y-c.center.Y) + 0.5
	r := float64(c.radius)
	if dx*dx+dy*dy < r*r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{A: 0}
}
