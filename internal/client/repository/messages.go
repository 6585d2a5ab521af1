package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/internal/client/store"
	"github.com/aussiebroadwan/tabchat/pkg/idx"
)

// Messages is the local message data source.
type Messages struct {
	store   store.Store
	friends *Friends
	logger  *slog.Logger
	now     func() time.Time
}

// NewMessages creates the data source. When friends is not nil its list is
// reloaded after each insert so last message previews stay current.
func NewMessages(st store.Store, friends *Friends, logger *slog.Logger) *Messages {
	return &Messages{store: st, friends: friends, logger: logger, now: time.Now}
}

// Insert stores m. A missing client ID or send time is filled in.
func (r *Messages) Insert(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.SentAt.IsZero() {
		m.SentAt = r.now().UTC().Truncate(time.Millisecond)
	}
	if m.ClientID == "" {
		m.ClientID = idx.NewAt(m.SentAt).String()
	}

	id, err := r.store.Messages().InsertMessage(ctx, m)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = id

	if r.friends != nil {
		if _, err := r.friends.Refresh(ctx); err != nil {
			r.logger.Warn("failed to reload friend list", "error", err)
		}
	}
	return m, nil
}

// Send records an outgoing message from self to peer.
func (r *Messages) Send(ctx context.Context, self, peer, body string) (domain.Message, error) {
	return r.Insert(ctx, domain.Message{From: self, To: normalizeUsername(peer), Body: body})
}

func (r *Messages) Get(ctx context.Context, id int64) (domain.Message, error) {
	return r.store.Messages().GetMessage(ctx, id)
}

// Conversation returns up to limit messages exchanged with peer, newest
// first. A limit of zero or less returns everything.
func (r *Messages) Conversation(ctx context.Context, peer string, limit int) ([]domain.Message, error) {
	return r.store.Messages().ListConversation(ctx, normalizeUsername(peer), limit)
}
