package adapter

import (
	"context"
	"errors"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var (
	_ repository.ChatRepository    = (*PgChatRepository)(nil)
	_ repository.ProfileRepository = (*PgChatRepository)(nil)
)

func (r *PgChatRepository) SelectMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT chat_id::text, id::text, sender_id::text, content, sent_at, updated_at
		FROM chat_messages
		WHERE chat_id = $1::uuid
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ConversationID, &msg.ID, &msg.SenderID, &msg.Content, &msg.SentAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgChatRepository) InsertMessage(ctx context.Context, m chat.Message) (*chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	// sent_at/updated_at fall back to the server clock when the draft has none
	var out chat.Message
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, content, sent_at, updated_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2::uuid, $3::uuid, $4,
		        COALESCE($5, now()), COALESCE($6, now()))
		RETURNING chat_id::text, id::text, sender_id::text, content, sent_at, updated_at
	`, m.ID, m.ConversationID, m.SenderID, m.Content, nullTime(m.SentAt), nullTime(m.UpdatedAt)).
		Scan(&out.ConversationID, &out.ID, &out.SenderID, &out.Content, &out.SentAt, &out.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, repository.ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PgChatRepository) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1::uuid AND chat_id = $2::uuid`, messageID, conversationID)
	return err
}

func (r *PgChatRepository) FindProfile(ctx context.Context, userID string) (chat.Profile, bool, error) {
	if r == nil || r.pool == nil {
		return chat.Profile{}, false, errors.New("PgChatRepository: nil pool")
	}
	var p chat.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT user_id::text, COALESCE(avatar, '')
		FROM profiles
		WHERE user_id = $1::uuid
		LIMIT 1
	`, userID).Scan(&p.UserID, &p.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Profile{}, false, nil
	}
	if err != nil {
		return chat.Profile{}, false, err
	}
	return p, true, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
