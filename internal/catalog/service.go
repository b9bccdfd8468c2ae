package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultImageExt is used for uploads whose filename carries no extension.
const DefaultImageExt = ".jpg"

// Service applies validation and image handling on top of a Repository.
type Service struct {
	repo   Repository
	images ImageStore
	logger *zap.Logger
}

// NewService creates a catalog service.
//
// Precondition: repo, images, and logger must be non-nil.
func NewService(repo Repository, images ImageStore, logger *zap.Logger) *Service {
	return &Service{repo: repo, images: images, logger: logger}
}

// Cards returns every card with its keywords and image URL.
func (s *Service) Cards(ctx context.Context) ([]Card, error) {
	cards, err := s.repo.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	for i := range cards {
		key := cards[i].ImageKey
		if key == "" {
			key = fmt.Sprintf("%d%s", cards[i].ID, DefaultImageExt)
		}
		cards[i].ImageURL = s.images.URL(key)
		if cards[i].Keywords == nil {
			cards[i].Keywords = []Keyword{}
		}
	}
	return cards, nil
}

// Keywords returns every keyword.
func (s *Service) Keywords(ctx context.Context) ([]Keyword, error) {
	keywords, err := s.repo.ListKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing keywords: %w", err)
	}
	if keywords == nil {
		keywords = []Keyword{}
	}
	return keywords, nil
}

// AddKeyword creates a keyword.
//
// Postcondition: Returns the stored keyword, an error wrapping ErrInvalid for a
// blank name, or ErrKeywordExists when the name is taken.
func (s *Service) AddKeyword(ctx context.Context, name string) (Keyword, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Keyword{}, fmt.Errorf("%w: keyword name must not be empty", ErrInvalid)
	}
	kw, err := s.repo.CreateKeyword(ctx, name)
	if err != nil {
		return Keyword{}, err
	}
	s.logger.Info("keyword created", zap.Int64("keyword_id", kw.ID), zap.String("name", kw.Name))
	return kw, nil
}

// CreateCard stores card, then saves img as "<cardID><ext>" and links it.
//
// Postcondition: Returns the created card with ImageKey and ImageURL set, or an
// error. A card whose image fails to save is kept without an image key.
func (s *Service) CreateCard(ctx context.Context, card NewCard, img *Image) (Card, error) {
	if img == nil || img.Body == nil {
		return Card{}, ErrImageRequired
	}
	if err := validateCard(card); err != nil {
		return Card{}, err
	}

	created, err := s.repo.CreateCard(ctx, card)
	if err != nil {
		return Card{}, err
	}

	ext := strings.ToLower(filepath.Ext(img.Filename))
	if ext == "" {
		ext = DefaultImageExt
	}
	key := fmt.Sprintf("%d%s", created.ID, ext)
	if err := s.images.Save(ctx, key, *img); err != nil {
		return Card{}, fmt.Errorf("saving image for card %d: %w", created.ID, err)
	}
	if err := s.repo.SetCardImage(ctx, created.ID, key); err != nil {
		return Card{}, fmt.Errorf("linking image for card %d: %w", created.ID, err)
	}

	created.ImageKey = key
	created.ImageURL = s.images.URL(key)
	s.logger.Info("card created",
		zap.Int64("card_id", created.ID),
		zap.String("name", created.Name),
		zap.String("image", key),
	)
	return created, nil
}

func validateCard(card NewCard) error {
	if strings.TrimSpace(card.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if card.Cost < 0 {
		return fmt.Errorf("%w: cost must be >= 0, got %d", ErrInvalid, card.Cost)
	}
	seen := make(map[int64]bool, len(card.KeywordIDs))
	for _, id := range card.KeywordIDs {
		if seen[id] {
			return fmt.Errorf("%w: keyword %d listed twice", ErrInvalid, id)
		}
		seen[id] = true
	}
	return nil
}
