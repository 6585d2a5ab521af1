package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/internal/client/store"
	"github.com/aussiebroadwan/tabchat/pkg/observable"
)

// Friends is the contact list. It keeps an observable copy of the list that
// is reloaded after every local change.
type Friends struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time

	list *observable.Value[[]domain.FriendRepresentation]
}

func NewFriends(st store.Store, logger *slog.Logger) *Friends {
	return &Friends{
		store:  st,
		logger: logger,
		now:    time.Now,
		list:   observable.New[[]domain.FriendRepresentation](nil),
	}
}

// Subscribe observes the friend list. The subscription starts with the last
// loaded list.
func (r *Friends) Subscribe() *observable.Subscription[[]domain.FriendRepresentation] {
	return r.list.Subscribe()
}

// Current returns the last loaded list without touching the database.
func (r *Friends) Current() []domain.FriendRepresentation {
	return r.list.Get()
}

// Refresh reloads the list from the database and publishes it.
func (r *Friends) Refresh(ctx context.Context) ([]domain.FriendRepresentation, error) {
	friends, err := r.store.Friends().ListFriends(ctx)
	if err != nil {
		return nil, err
	}
	r.list.Set(friends)
	return friends, nil
}

func (r *Friends) Get(ctx context.Context, username string) (domain.Friend, error) {
	return r.store.Friends().GetFriend(ctx, normalizeUsername(username))
}

// Add saves a new friend and republishes the list. Adding a username twice
// returns store.ErrAlreadyExists.
func (r *Friends) Add(ctx context.Context, username, publicKey string) (domain.Friend, error) {
	username = normalizeUsername(username)
	if username == "" {
		return domain.Friend{}, fmt.Errorf("friend username is required")
	}

	var added domain.Friend
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Friends().InsertFriend(ctx, domain.Friend{
			Username:  username,
			PublicKey: publicKey,
			AddedAt:   r.now(),
		}); err != nil {
			return err
		}

		var err error
		added, err = tx.Friends().GetFriend(ctx, username)
		return err
	})
	if err != nil {
		return domain.Friend{}, err
	}

	r.logger.Info("friend added", "username", username)

	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("failed to reload friend list", "error", err)
	}
	return added, nil
}

func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}
