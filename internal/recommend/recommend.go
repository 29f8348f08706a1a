// Package recommend ranks companions for a renter.
package recommend

import (
	"sort"
	"strings"

	"companion/internal/models"
)

const (
	cityWeight        = 3
	interestWeight    = 1
	maxInterestPoints = 5
	onlineWeight      = 2
)

type Scored struct {
	User  *models.User `json:"user"`
	Score int          `json:"score"`
}

// Score weighs a companion against the renter's profile.
func Score(renter, companion *models.User) int {
	if renter == nil || companion == nil {
		return 0
	}
	score := 0
	if renter.City != "" && strings.EqualFold(strings.TrimSpace(renter.City), strings.TrimSpace(companion.City)) {
		score += cityWeight
	}

	shared := sharedInterests(renter.Interests, companion.Interests) * interestWeight
	if shared > maxInterestPoints {
		shared = maxInterestPoints
	}
	score += shared

	if companion.IsOnline {
		score += onlineWeight
	}
	return score
}

// Rank scores companions, skipping the renter and non-companions, and returns
// at most limit entries ordered by score, ties broken by lower id.
func Rank(renter *models.User, companions []*models.User, limit int) []Scored {
	if limit <= 0 {
		limit = models.DefaultRecommendationLimit
	}

	out := make([]Scored, 0, len(companions))
	for _, c := range companions {
		if c == nil || !c.IsCompanion {
			continue
		}
		if renter != nil && c.ID == renter.ID {
			continue
		}
		out = append(out, Scored{User: c, Score: Score(renter, c)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].User.ID < out[j].User.ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sharedInterests(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		if s = normalize(s); s != "" {
			set[s] = struct{}{}
		}
	}
	count := 0
	for _, s := range b {
		s = normalize(s)
		if _, ok := set[s]; ok {
			count++
			delete(set, s)
		}
	}
	return count
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
