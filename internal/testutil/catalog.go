package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/cory-johannsen/duelhub/internal/catalog"
)

// MemoryCatalog is an in-memory catalog.Repository with the same error
// contract as the postgres one.
type MemoryCatalog struct {
	mu       sync.Mutex
	nextID   int64
	keywords map[int64]catalog.Keyword
	cards    map[int64]catalog.Card
}

// NewMemoryCatalog returns an empty repository.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		keywords: make(map[int64]catalog.Keyword),
		cards:    make(map[int64]catalog.Card),
	}
}

func (m *MemoryCatalog) ListCards(_ context.Context) ([]catalog.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Card, 0, len(m.cards))
	for _, c := range m.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryCatalog) ListKeywords(_ context.Context) ([]catalog.Keyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Keyword, 0, len(m.keywords))
	for _, k := range m.keywords {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryCatalog) CreateKeyword(_ context.Context, name string) (catalog.Keyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keywords {
		if k.Name == name {
			return catalog.Keyword{}, catalog.ErrKeywordExists
		}
	}
	m.nextID++
	kw := catalog.Keyword{ID: m.nextID, Name: name}
	m.keywords[kw.ID] = kw
	return kw, nil
}

func (m *MemoryCatalog) CreateCard(_ context.Context, nc catalog.NewCard) (catalog.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keywords := make([]catalog.Keyword, 0, len(nc.KeywordIDs))
	for _, id := range nc.KeywordIDs {
		kw, ok := m.keywords[id]
		if !ok {
			return catalog.Card{}, catalog.ErrKeywordNotFound
		}
		keywords = append(keywords, kw)
	}
	m.nextID++
	card := catalog.Card{
		ID:         m.nextID,
		Name:       nc.Name,
		Attack:     nc.Attack,
		Defense:    nc.Defense,
		Cost:       nc.Cost,
		Type:       nc.Type,
		Color:      nc.Color,
		Subtype:    nc.Subtype,
		Rarity:     nc.Rarity,
		EffectName: nc.EffectName,
		EffectType: nc.EffectType,
		EffectText: nc.EffectText,
		Keywords:   keywords,
	}
	m.cards[card.ID] = card
	return card, nil
}

func (m *MemoryCatalog) SetCardImage(_ context.Context, cardID int64, imageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok {
		return catalog.ErrCardNotFound
	}
	card.ImageKey = imageKey
	m.cards[cardID] = card
	return nil
}
