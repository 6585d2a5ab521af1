package sqlite

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
)

type messagesRepo struct {
	db dbtx
}

func (r *messagesRepo) InsertMessage(ctx context.Context, m domain.Message) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (client_id, from_user, to_user, body, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ClientID, m.From, m.To, m.Body, toMillis(m.SentAt))
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (r *messagesRepo) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, from_user, to_user, body, sent_at
		FROM messages WHERE id = ?
	`, id)

	m, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, mapNotFound(err)
	}
	return m, nil
}

func (r *messagesRepo) ListConversation(ctx context.Context, peer string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, from_user, to_user, body, sent_at
		FROM messages
		WHERE from_user = ? OR to_user = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, peer, peer, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation with %q: %w", peer, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (domain.Message, error) {
	var (
		m      domain.Message
		sentAt int64
	)
	if err := s.Scan(&m.ID, &m.ClientID, &m.From, &m.To, &m.Body, &sentAt); err != nil {
		return domain.Message{}, err
	}
	m.SentAt = fromMillis(sentAt)
	return m, nil
}
