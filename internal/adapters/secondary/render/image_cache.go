package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"
)

const avatarLoadTimeout = 10 * time.Second

// ImageFetcher télécharge et décode une image distante
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

// ImageCache garde les avatars déjà redimensionnés, par URL CDN.
// Un miss ne bloque jamais le rendu : le chargement part en tâche de
// fond et la frame suivante en profite.
type ImageCache struct {
	fetcher ImageFetcher
	size    int
	cache   *lru.Cache[string, image.Image]
	loads   singleflight.Group
}

func NewImageCache(fetcher ImageFetcher, entries, size int) (*ImageCache, error) {
	cache, err := lru.New[string, image.Image](entries)
	if err != nil {
		return nil, fmt.Errorf("image cache: %w", err)
	}
	return &ImageCache{fetcher: fetcher, size: size, cache: cache}, nil
}

// Get renvoie l'image si elle est en cache. Sinon un chargement est
// planifié (un seul par URL) et Get renvoie false.
func (c *ImageCache) Get(ctx context.Context, url string) (image.Image, bool) {
	if img, ok := c.cache.Get(url); ok {
		return img, true
	}

	loadCtx := context.WithoutCancel(ctx)
	// DoChan ne bloque pas : un chargement déjà en vol est simplement rejoint
	c.loads.DoChan(url, func() (any, error) {
		ctx, cancel := context.WithTimeout(loadCtx, avatarLoadTimeout)
		defer cancel()
		return nil, c.load(ctx, url)
	})
	return nil, false
}

func (c *ImageCache) load(ctx context.Context, url string) error {
	if c.cache.Contains(url) {
		return nil
	}

	src, err := c.fetcher.FetchImage(ctx, url)
	if err != nil {
		slog.Debug("Avatar load failed", "url", url, "error", err)
		return err
	}

	dst := image.NewRGBA(image.Rect(0, 0, c.size, c.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	c.cache.Add(url, dst)
	return nil
}

func (c *ImageCache) Purge() {
	c.cache.Purge()
}

func (c *ImageCache) Len() int {
	return c.cache.Len()
}
