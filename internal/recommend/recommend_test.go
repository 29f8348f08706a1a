package recommend

import (
	"testing"

	"companion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	renter := &models.User{ID: 1, City: "Berlin", Interests: []string{"chess", "Jazz", "hiking"}}

	tests := []struct {
		name      string
		companion *models.User
		want      int
	}{
		{"nothing in common", &models.User{ID: 2, City: "Paris"}, 0},
		{"same city case insensitive", &models.User{ID: 2, City: " berlin"}, 3},
		{"shared interests", &models.User{ID: 2, Interests: []string{"jazz", "chess", "golf"}}, 2},
		{"duplicate interest counted once", &models.User{ID: 2, Interests: []string{"jazz", "JAZZ"}}, 1},
		{"online", &models.User{ID: 2, IsOnline: true}, 2},
		{"everything", &models.User{ID: 2, City: "Berlin", IsOnline: true, Interests: []string{"hiking"}}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(renter, tt.companion))
		})
	}
}

func TestScore_InterestCap(t *testing.T) {
	interests := []string{"a", "b", "c", "d", "e", "f", "g"}
	renter := &models.User{ID: 1, Interests: interests}
	companion := &models.User{ID: 2, Interests: interests}

	assert.Equal(t, maxInterestPoints, Score(renter, companion))
}

func TestScore_EmptyCityDoesNotMatch(t *testing.T) {
	assert.Equal(t, 0, Score(&models.User{ID: 1}, &models.User{ID: 2}))
	assert.Equal(t, 0, Score(nil, &models.User{ID: 2, IsOnline: true}))
}

func TestRank(t *testing.T) {
	renter := &models.User{ID: 1, City: "Berlin", Interests: []string{"chess"}, IsCompanion: true}
	companions := []*models.User{
		renter,
		{ID: 5, IsCompanion: true, City: "Berlin"},
		{ID: 3, IsCompanion: true, IsOnline: true, Interests: []string{"chess"}},
		{ID: 4, IsCompanion: true, City: "Berlin"},
		{ID: 9, IsCompanion: false, City: "Berlin", IsOnline: true},
		{ID: 2, IsCompanion: true},
		nil,
	}

	ranked := Rank(renter, companions, 10)
	require.Len(t, ranked, 4)

	ids := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.User.ID)
	}
	assert.Equal(t, []int64{3, 4, 5, 2}, ids)
	assert.Equal(t, 3, ranked[0].Score)
	assert.Equal(t, 0, ranked[3].Score)
}

func TestRank_Limit(t *testing.T) {
	var companions []*models.User
	for i := int64(1); i <= 15; i++ {
		companions = append(companions, &models.User{ID: i, IsCompanion: true})
	}

	assert.Len(t, Rank(&models.User{ID: 100}, companions, 3), 3)
	assert.Len(t, Rank(&models.User{ID: 100}, companions, 0), models.DefaultRecommendationLimit)
	assert.Empty(t, Rank(&models.User{ID: 100}, nil, 5))
}
