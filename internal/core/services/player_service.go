package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

// PlayerService est l'état de référence du lecteur audio. Le navigateur
// joue les pistes et remonte "ended" / "error".
type PlayerService struct {
	publisher  ports.EventPublisher
	tracks     []string
	retryDelay time.Duration

	mu      sync.Mutex
	current int
	playing bool
	volume  float64
	retry   *time.Timer
}

func NewPlayerService(pub ports.EventPublisher, retryDelay time.Duration) *PlayerService {
	return &PlayerService{
		publisher:  pub,
		tracks:     domain.Playlist,
		retryDelay: retryDelay,
		volume:     domain.DefaultVolume,
	}
}

func (p *PlayerService) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *PlayerService) stateLocked() domain.PlayerState {
	track := p.tracks[p.current]
	return domain.PlayerState{
		CurrentTrackIndex: p.current,
		IsPlaying:         p.playing,
		Volume:            p.volume,
		Track:             track,
		TrackName:         domain.TrackName(track),
	}
}

func (p *PlayerService) Next(ctx context.Context) domain.PlayerState {
	return p.changeTrack(ctx, 1)
}

func (p *PlayerService) Prev(ctx context.Context) domain.PlayerState {
	return p.changeTrack(ctx, -1)
}

func (p *PlayerService) changeTrack(ctx context.Context, step int) domain.PlayerState {
	p.mu.Lock()
	p.current = p.wrap(p.current + step)
	st := p.stateLocked()
	p.mu.Unlock()

	p.publish(ctx, st)
	return st
}

func (p *PlayerService) TogglePlay(ctx context.Context) domain.PlayerState {
	p.mu.Lock()
	p.playing = !p.playing
	st := p.stateLocked()
	p.mu.Unlock()

	p.publish(ctx, st)
	return st
}

func (p *PlayerService) SetVolume(ctx context.Context, v float64) (domain.PlayerState, error) {
	if v < 0 || v > 1 {
		return p.State(), domain.ErrInvalidVolume
	}

	p.mu.Lock()
	p.volume = v
	st := p.stateLocked()
	p.mu.Unlock()

	p.publish(ctx, st)
	return st, nil
}

// TrackEnded passe à la piste suivante et force la lecture
func (p *PlayerService) TrackEnded(ctx context.Context) domain.PlayerState {
	p.mu.Lock()
	p.current = p.wrap(p.current + 1)
	p.playing = true
	st := p.stateLocked()
	p.mu.Unlock()

	slog.Debug("🎵 Track ended, moving to next", "track", st.TrackName)
	p.publish(ctx, st)
	return st
}

// TrackFailed planifie un passage à la piste suivante après retryDelay,
// seulement si la lecture est toujours active à ce moment-là.
func (p *PlayerService) TrackFailed(ctx context.Context) domain.PlayerState {
	bg := context.WithoutCancel(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retry != nil {
		p.retry.Stop()
	}
	p.retry = time.AfterFunc(p.retryDelay, func() {
		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			return
		}
		p.current = p.wrap(p.current + 1)
		st := p.stateLocked()
		p.mu.Unlock()

		slog.Warn("🎵 Audio error, skipped to next track", "track", st.TrackName)
		p.publish(bg, st)
	})
	return p.stateLocked()
}

// Close annule un retry en attente
func (p *PlayerService) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retry != nil {
		p.retry.Stop()
	}
}

func (p *PlayerService) wrap(i int) int {
	n := len(p.tracks)
	return ((i % n) + n) % n
}

func (p *PlayerService) publish(ctx context.Context, st domain.PlayerState) {
	if err := p.publisher.PublishPlayerState(ctx, st); err != nil {
		slog.Error("❌ Failed to publish player state", "error", err)
	}
}
