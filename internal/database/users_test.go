package database

import (
	"context"
	"testing"

	"companion/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	renter, companion := seedParties(t, db)

	t.Run("GetUserByID", func(t *testing.T) {
		got, err := db.GetUserByID(ctx, companion.ID)
		require.NoError(t, err)
		assert.Equal(t, "Boris Companion", got.DisplayName)
		assert.Equal(t, []string{"chess", "jazz"}, got.Interests)
		assert.True(t, got.HourlyRate.Equal(decimal.NewFromInt(50)))
		assert.True(t, got.IsCompanion)
		assert.False(t, got.IsOnline)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.GetUserByID(ctx, 12345)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("Upsert", func(t *testing.T) {
		renter.City = "Kazan"
		renter.TelegramChatID = 777
		require.NoError(t, db.CreateOrUpdateUser(ctx, renter))

		got, err := db.GetUserByID(ctx, renter.ID)
		require.NoError(t, err)
		assert.Equal(t, "Kazan", got.City)
		assert.Equal(t, int64(777), got.TelegramChatID)
		assert.Empty(t, got.Interests)
	})

	t.Run("ListCompanions", func(t *testing.T) {
		list, err := db.ListCompanions(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, companion.ID, list[0].ID)
	})

	t.Run("SetUserOnline", func(t *testing.T) {
		require.NoError(t, db.SetUserOnline(ctx, companion.ID, true))
		got, err := db.GetUserByID(ctx, companion.ID)
		require.NoError(t, err)
		assert.True(t, got.IsOnline)
	})
}

func TestInterestsEncoding(t *testing.T) {
	assert.Equal(t, "art,live music", joinInterests([]string{" Art ", "", "Live,Music"}))
	assert.Equal(t, []string{}, splitInterests(""))
	assert.Equal(t, []string{"a", "b"}, splitInterests("a,b"))
}
