package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duelhub/internal/catalog"
	"github.com/cory-johannsen/duelhub/internal/storage/postgres"
	"github.com/cory-johannsen/duelhub/internal/testutil"
)

func setupCatalog(t *testing.T) (*postgres.CatalogRepository, *testutil.PostgresContainer) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewCatalogRepository(pc.RawPool), pc
}

func intPtr(v int) *int { return &v }

func TestCatalogRepository(t *testing.T) {
	repo, pc := setupCatalog(t)
	ctx := context.Background()

	t.Run("keywords", func(t *testing.T) {
		pc.Truncate(t)
		haste, err := repo.CreateKeyword(ctx, "Haste")
		require.NoError(t, err)
		assert.NotZero(t, haste.ID)

		_, err = repo.CreateKeyword(ctx, "Haste")
		assert.ErrorIs(t, err, catalog.ErrKeywordExists)

		taunt, err := repo.CreateKeyword(ctx, "Taunt")
		require.NoError(t, err)

		kws, err := repo.ListKeywords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []catalog.Keyword{haste, taunt}, kws)
	})

	t.Run("cards with keywords", func(t *testing.T) {
		pc.Truncate(t)
		haste, err := repo.CreateKeyword(ctx, "Haste")
		require.NoError(t, err)
		flying, err := repo.CreateKeyword(ctx, "Flying")
		require.NoError(t, err)

		subtype := "imp"
		card, err := repo.CreateCard(ctx, catalog.NewCard{
			Name:       "Ember Imp",
			Attack:     intPtr(2),
			Cost:       1,
			Type:       "creature",
			Color:      "red",
			Subtype:    &subtype,
			Rarity:     "common",
			EffectName: "Singe",
			KeywordIDs: []int64{flying.ID, haste.ID},
		})
		require.NoError(t, err)
		assert.NotZero(t, card.ID)
		assert.WithinDuration(t, time.Now(), card.CreatedAt, time.Minute)
		assert.ElementsMatch(t, []catalog.Keyword{haste, flying}, card.Keywords)

		spell, err := repo.CreateCard(ctx, catalog.NewCard{Name: "Bolt", Cost: 2, Type: "spell"})
		require.NoError(t, err)

		require.NoError(t, repo.SetCardImage(ctx, card.ID, fmt.Sprintf("%d.png", card.ID)))

		cards, err := repo.ListCards(ctx)
		require.NoError(t, err)
		require.Len(t, cards, 2)
		assert.Equal(t, "Ember Imp", cards[0].Name)
		assert.Equal(t, 2, *cards[0].Attack)
		assert.Nil(t, cards[0].Defense)
		assert.Equal(t, "imp", *cards[0].Subtype)
		assert.Equal(t, fmt.Sprintf("%d.png", card.ID), cards[0].ImageKey)
		assert.Equal(t, []catalog.Keyword{haste, flying}, cards[0].Keywords)

		assert.Equal(t, spell.ID, cards[1].ID)
		assert.Nil(t, cards[1].Subtype)
		assert.Empty(t, cards[1].Keywords)
		assert.NotNil(t, cards[1].Keywords)
	})

	t.Run("unknown keyword rolls back", func(t *testing.T) {
		pc.Truncate(t)
		_, err := repo.CreateCard(ctx, catalog.NewCard{Name: "Ghost", Cost: 1, KeywordIDs: []int64{404}})
		assert.ErrorIs(t, err, catalog.ErrKeywordNotFound)

		cards, err := repo.ListCards(ctx)
		require.NoError(t, err)
		assert.Empty(t, cards)
	})

	t.Run("set image on missing card", func(t *testing.T) {
		pc.Truncate(t)
		assert.ErrorIs(t, repo.SetCardImage(ctx, 999, "999.png"), catalog.ErrCardNotFound)
	})

	t.Run("pool health", func(t *testing.T) {
		assert.NoError(t, pc.Pool.Health(ctx, time.Second))
	})
}

func TestSQLStateClassification(t *testing.T) {
	dup := fmt.Errorf("inserting: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, postgres.IsDuplicateKeyError(dup))
	assert.False(t, postgres.IsDuplicateKeyError(fk))
	assert.True(t, postgres.IsForeignKeyError(fk))
	assert.False(t, postgres.IsForeignKeyError(assert.AnError))
}
