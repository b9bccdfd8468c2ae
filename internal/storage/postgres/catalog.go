package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duelhub/internal/catalog"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// CatalogRepository implements catalog.Repository over PostgreSQL.
type CatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository creates a CatalogRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCards returns every card ordered by id, each with its keywords.
func (r *CatalogRepository) ListCards(ctx context.Context) ([]catalog.Card, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, attack, defense, cost, type, color, subtype, rarity,
		        effect_name, effect_type, effect_text, image_key, created_at
		 FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying cards: %w", err)
	}
	defer rows.Close()

	var cards []catalog.Card
	index := make(map[int64]int)
	for rows.Next() {
		var c catalog.Card
		if err := rows.Scan(&c.ID, &c.Name, &c.Attack, &c.Defense, &c.Cost, &c.Type, &c.Color,
			&c.Subtype, &c.Rarity, &c.EffectName, &c.EffectType, &c.EffectText, &c.ImageKey, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		c.Keywords = []catalog.Keyword{}
		index[c.ID] = len(cards)
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cards: %w", err)
	}
	if len(cards) == 0 {
		return cards, nil
	}

	links, err := r.db.Query(ctx,
		`SELECT ck.card_id, k.id, k.name
		 FROM card_keywords ck JOIN keywords k ON k.id = ck.keyword_id
		 ORDER BY ck.card_id, k.id`)
	if err != nil {
		return nil, fmt.Errorf("querying card keywords: %w", err)
	}
	defer links.Close()

	for links.Next() {
		var cardID int64
		var kw catalog.Keyword
		if err := links.Scan(&cardID, &kw.ID, &kw.Name); err != nil {
			return nil, fmt.Errorf("scanning card keyword: %w", err)
		}
		if i, ok := index[cardID]; ok {
			cards[i].Keywords = append(cards[i].Keywords, kw)
		}
	}
	if err := links.Err(); err != nil {
		return nil, fmt.Errorf("iterating card keywords: %w", err)
	}
	return cards, nil
}

// ListKeywords returns every keyword ordered by id.
func (r *CatalogRepository) ListKeywords(ctx context.Context) ([]catalog.Keyword, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM keywords ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	keywords, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Keyword, error) {
		var kw catalog.Keyword
		err := row.Scan(&kw.ID, &kw.Name)
		return kw, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning keywords: %w", err)
	}
	return keywords, nil
}

// CreateKeyword inserts a keyword.
//
// Postcondition: Returns the stored keyword, or catalog.ErrKeywordExists if
// the name is taken.
func (r *CatalogRepository) CreateKeyword(ctx context.Context, name string) (catalog.Keyword, error) {
	var kw catalog.Keyword
	err := r.db.QueryRow(ctx,
		`INSERT INTO keywords (name) VALUES ($1) RETURNING id, name`,
		name,
	).Scan(&kw.ID, &kw.Name)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return catalog.Keyword{}, catalog.ErrKeywordExists
		}
		return catalog.Keyword{}, fmt.Errorf("inserting keyword: %w", err)
	}
	return kw, nil
}

// CreateCard inserts a card and its keyword links in one transaction.
//
// Postcondition: Returns the stored card with keywords resolved, or
// catalog.ErrKeywordNotFound if any keyword id is unknown; nothing is
// written in that case.
func (r *CatalogRepository) CreateCard(ctx context.Context, nc catalog.NewCard) (catalog.Card, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return catalog.Card{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c := catalog.Card{
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
		Keywords:   []catalog.Keyword{},
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO cards (name, attack, defense, cost, type, color, subtype, rarity,
		                    effect_name, effect_type, effect_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		c.Name, c.Attack, c.Defense, c.Cost, c.Type, c.Color, c.Subtype, c.Rarity,
		c.EffectName, c.EffectType, c.EffectText,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return catalog.Card{}, fmt.Errorf("inserting card: %w", err)
	}

	for _, kwID := range nc.KeywordIDs {
		var kw catalog.Keyword
		err := tx.QueryRow(ctx,
			`WITH link AS (
			     INSERT INTO card_keywords (card_id, keyword_id) VALUES ($1, $2)
			     RETURNING keyword_id
			 )
			 SELECT k.id, k.name FROM keywords k JOIN link ON link.keyword_id = k.id`,
			c.ID, kwID,
		).Scan(&kw.ID, &kw.Name)
		if err != nil {
			if IsForeignKeyError(err) {
				return catalog.Card{}, fmt.Errorf("%w: id %d", catalog.ErrKeywordNotFound, kwID)
			}
			return catalog.Card{}, fmt.Errorf("linking keyword %d: %w", kwID, err)
		}
		c.Keywords = append(c.Keywords, kw)
	}

	if err := tx.Commit(ctx); err != nil {
		return catalog.Card{}, fmt.Errorf("committing card: %w", err)
	}
	return c, nil
}

// SetCardImage records the image key of a card.
//
// Postcondition: Returns nil, or catalog.ErrCardNotFound if no such card exists.
func (r *CatalogRepository) SetCardImage(ctx context.Context, cardID int64, imageKey string) error {
	tag, err := r.db.Exec(ctx, `UPDATE cards SET image_key = $1 WHERE id = $2`, imageKey, cardID)
	if err != nil {
		return fmt.Errorf("updating card image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCardNotFound
	}
	return nil
}

// IsDuplicateKeyError reports a unique constraint violation.
func IsDuplicateKeyError(err error) bool {
	return hasSQLState(err, sqlStateUniqueViolation)
}

// IsForeignKeyError reports a foreign key violation.
func IsForeignKeyError(err error) bool {
	return hasSQLState(err, sqlStateForeignKeyViolation)
}

func hasSQLState(err error, state string) bool {
	// pgx wraps PostgreSQL errors behind *pgconn.PgError.
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == state
	}
	return false
}
