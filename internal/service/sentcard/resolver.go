package sentcard

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

// Resolver loads the cards and owners that SMS messages point at.
// Misses are never cached, so a card created later is still found.
type Resolver struct {
	cards repository.SentCardRepository
	users repository.UserRepository
	cache *cache.Cache
}

// NewResolver caches hits for ttl. A ttl of zero or less disables caching.
func NewResolver(cards repository.SentCardRepository, users repository.UserRepository, ttl time.Duration) *Resolver {
	r := &Resolver{cards: cards, users: users}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Card returns the card or (nil, nil) when it no longer exists.
func (r *Resolver) Card(ctx context.Context, id int64) (*model.SentCard, error) {
	key := fmt.Sprintf("card:%d", id)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*model.SentCard), nil
		}
	}

	card, err := r.cards.FindByPk(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.Persistence("find sent card", err)
	}
	if r.cache != nil {
		r.cache.SetDefault(key, card)
	}
	return card, nil
}

// User returns the user or (nil, nil) when it no longer exists.
func (r *Resolver) User(ctx context.Context, id int64) (*model.User, error) {
	key := fmt.Sprintf("user:%d", id)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*model.User), nil
		}
	}

	user, err := r.users.FindByPk(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.Persistence("find user", err)
	}
	if r.cache != nil {
		r.cache.SetDefault(key, user)
	}
	return user, nil
}
