package services

import (
	"cmp"
	"slices"
	"sync"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

// Merge fusionne incoming dans existing sans modifier les entrées.
// Un id déjà vu est écrasé par la version entrante mais garde sa place
// d'insertion ; le résultat est trié par EventTime décroissant, stable
// pour les égalités. Aucun événement n'est jamais retiré.
func Merge(existing, incoming []domain.ActivityEvent) []domain.ActivityEvent {
	if len(incoming) == 0 {
		return slices.Clone(existing)
	}

	index := make(map[int64]int, len(existing)+len(incoming))
	merged := make([]domain.ActivityEvent, 0, len(existing)+len(incoming))

	for _, e := range existing {
		if i, ok := index[e.ID]; ok {
			merged[i] = e
			continue
		}
		index[e.ID] = len(merged)
		merged = append(merged, e)
	}
	for _, e := range incoming {
		if i, ok := index[e.ID]; ok {
			merged[i] = e
			continue
		}
		index[e.ID] = len(merged)
		merged = append(merged, e)
	}

	slices.SortStableFunc(merged, func(a, b domain.ActivityEvent) int {
		return cmp.Compare(b.EventTime, a.EventTime)
	})
	return merged
}

// Accumulator porte l'ensemble fusionné d'une session de feed.
// Les merges sont sérialisés par le mutex.
type Accumulator struct {
	mu     sync.RWMutex
	events []domain.ActivityEvent
	seen   map[int64]struct{}
}

func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[int64]struct{})}
}

// Merge applique un résultat de fetch complet et renvoie les événements
// jamais vus auparavant.
func (a *Accumulator) Merge(incoming []domain.ActivityEvent) []domain.ActivityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	var fresh []domain.ActivityEvent
	for _, e := range incoming {
		if _, ok := a.seen[e.ID]; ok {
			continue
		}
		a.seen[e.ID] = struct{}{}
		fresh = append(fresh, e)
	}

	a.events = Merge(a.events, incoming)
	return fresh
}

// Snapshot renvoie une copie triée
func (a *Accumulator) Snapshot() []domain.ActivityEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.events)
}

func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.events)
}

func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = nil
	a.seen = make(map[int64]struct{})
}
