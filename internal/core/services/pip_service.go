package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

// PiPVisibleEvents : nombre d'événements dessinés dans la frame
const PiPVisibleEvents = 6

var ErrPiPClosed = errors.New("pip renderer stopped")

type PiPService struct {
	feed     ports.FeedService
	player   ports.PlayerService
	painter  ports.FramePainter
	cache    ports.AvatarCache
	interval time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	png    []byte
	jpeg   []byte
	subs   map[int]chan []byte
	nextID int
	closed bool
}

func NewPiPService(feed ports.FeedService, player ports.PlayerService, painter ports.FramePainter, cache ports.AvatarCache, interval time.Duration) *PiPService {
	return &PiPService{
		feed:     feed,
		player:   player,
		painter:  painter,
		cache:    cache,
		interval: interval,
		now:      time.Now,
		subs:     make(map[int]chan []byte),
	}
}

// Run redessine toutes les interval jusqu'à l'annulation de ctx, puis
// ferme les flux ouverts.
func (p *PiPService) Run(ctx context.Context) error {
	slog.Info("🖼️ PiP renderer started", "interval", p.interval)
	defer p.shutdown()

	if err := p.redraw(ctx); err != nil {
		slog.Error("Initial PiP redraw failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("🛑 PiP renderer stopped")
			return nil
		case <-ticker.C:
			// Quelqu'un regarde : on rafraîchit le feed avant de redessiner
			if p.viewers() > 0 {
				if _, err := p.feed.Revalidate(ctx, domain.FeedQuery{}); err != nil {
					slog.Debug("PiP feed refresh failed", "error", err)
				}
			}
			if err := p.redraw(ctx); err != nil {
				slog.Error("❌ PiP redraw failed", "error", err)
			}
		}
	}
}

func (p *PiPService) redraw(ctx context.Context) error {
	status := p.feed.Status(ctx, domain.FeedQuery{})
	scene := ports.Scene{
		NowPlaying: p.player.State().TrackName,
		Events:     status.Recent(PiPVisibleEvents),
		Loading:    status.IsLoading,
		Now:        p.now(),
	}

	img, err := p.painter.Paint(ctx, scene)
	if err != nil {
		return fmt.Errorf("paint: %w", err)
	}

	var pngBuf, jpegBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.png = pngBuf.Bytes()
	p.jpeg = jpegBuf.Bytes()

	for _, ch := range p.subs {
		// Viewer lent : on remplace la frame en attente plutôt que bloquer
		select {
		case <-ch:
		default:
		}
		ch <- p.jpeg
	}
	return nil
}

func (p *PiPService) Frame(ctx context.Context) ([]byte, error) {
	p.mu.RLock()
	frame, closed := p.png, p.closed
	p.mu.RUnlock()

	if frame != nil {
		return frame, nil
	}
	if closed {
		return nil, ErrPiPClosed
	}
	if err := p.redraw(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.png, nil
}

func (p *PiPService) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	if p.jpeg != nil {
		ch <- p.jpeg
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			c, ok := p.subs[id]
			if ok {
				delete(p.subs, id)
				close(c)
			}
			last := ok && len(p.subs) == 0
			p.mu.Unlock()

			// Plus personne ne regarde : fin de la session PiP
			if last {
				p.Reset()
			}
		})
	}
	return ch, cancel
}

// Reset vide le cache d'avatars (fin de session PiP)
func (p *PiPService) Reset() {
	n := p.cache.Len()
	p.cache.Purge()
	slog.Info("🧹 PiP avatar cache purged", "entries", n)
}

func (p *PiPService) viewers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func (p *PiPService) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}
