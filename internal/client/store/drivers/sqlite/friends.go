package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
)

type friendsRepo struct {
	db dbtx
}

func (r *friendsRepo) ListFriends(ctx context.Context) ([]domain.FriendRepresentation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.username, f.public_key, f.added_at, m.body, m.sent_at
		FROM friends f
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE from_user = f.username OR to_user = f.username
			ORDER BY sent_at DESC, id DESC
			LIMIT 1
		)
		ORDER BY f.username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var out []domain.FriendRepresentation
	for rows.Next() {
		var (
			fr      domain.FriendRepresentation
			addedAt int64
			body    sql.NullString
			sentAt  sql.NullInt64
		)
		if err := rows.Scan(&fr.ID, &fr.Username, &fr.PublicKey, &addedAt, &body, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend row: %w", err)
		}
		fr.AddedAt = fromMillis(addedAt)
		fr.LastMessage = mapNullString(body)
		fr.LastMessageAt = mapNullMillisPtr(sentAt)
		out = append(out, fr)
	}
	return out, rows.Err()
}

func (r *friendsRepo) GetFriend(ctx context.Context, username string) (domain.Friend, error) {
	var (
		f       domain.Friend
		addedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, public_key, added_at FROM friends WHERE username = ?
	`, username).Scan(&f.ID, &f.Username, &f.PublicKey, &addedAt)
	if err != nil {
		return domain.Friend{}, mapNotFound(err)
	}
	f.AddedAt = fromMillis(addedAt)
	return f, nil
}

func (r *friendsRepo) InsertFriend(ctx context.Context, f domain.Friend) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO friends (username, public_key, added_at) VALUES (?, ?, ?)
	`, f.Username, f.PublicKey, toMillis(f.AddedAt))
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}
