// Package catalog manages the card and keyword catalog that deck-building
// clients read from and card designers write to. Matchmaking never depends
// on it.
package catalog

import (
	"context"
	"errors"
	"io"
	"time"
)

// Keyword is a named card ability, also served to clients as an "effect".
type Keyword struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Card is one catalog card with its keywords resolved.
type Card struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Attack     *int      `json:"attack"`
	Defense    *int      `json:"defense"`
	Cost       int       `json:"cost"`
	Type       string    `json:"type"`
	Color      string    `json:"color"`
	Subtype    *string   `json:"subtype"`
	Rarity     string    `json:"rarity"`
	EffectName string    `json:"effectName"`
	EffectType string    `json:"effectType"`
	EffectText string    `json:"effectText"`
	CreatedAt  time.Time `json:"createdAt"`
	Keywords   []Keyword `json:"keywords"`

	// ImageKey names the stored image; ImageURL is derived from it on read.
	ImageKey string `json:"-"`
	ImageURL string `json:"image_url,omitempty"`
}

// NewCard is the input to CreateCard.
type NewCard struct {
	Name       string
	Attack     *int
	Defense    *int
	Cost       int
	Type       string
	Color      string
	Subtype    *string
	Rarity     string
	EffectName string
	EffectType string
	EffectText string
	KeywordIDs []int64
}

// Image is an uploaded card image.
type Image struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

var (
	// ErrKeywordExists is returned when creating a keyword whose name is taken.
	ErrKeywordExists = errors.New("keyword with this name already exists")
	// ErrKeywordNotFound is returned when a card references an unknown keyword id.
	ErrKeywordNotFound = errors.New("keyword not found")
	// ErrCardNotFound is returned when updating a card that does not exist.
	ErrCardNotFound = errors.New("card not found")
	// ErrInvalid wraps every input validation failure.
	ErrInvalid = errors.New("invalid catalog input")
	// ErrImageRequired is returned when a card is created without an image.
	ErrImageRequired = errors.New("image file is required")
)

// Repository persists cards and keywords.
type Repository interface {
	ListCards(ctx context.Context) ([]Card, error)
	ListKeywords(ctx context.Context) ([]Keyword, error)
	CreateKeyword(ctx context.Context, name string) (Keyword, error)
	CreateCard(ctx context.Context, card NewCard) (Card, error)
	SetCardImage(ctx context.Context, cardID int64, imageKey string) error
}

// ImageStore keeps card images and knows the public URL of each.
type ImageStore interface {
	Save(ctx context.Context, key string, img Image) error
	URL(key string) string
}
