package database

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "postgresql://u:p@db:5432/chat", normalizeDSN(" postgresql+asyncpg://u:p@db:5432/chat "))
	assert.Equal(t, "postgres://db/chat", normalizeDSN("postgres+pgx://db/chat"))
	assert.Equal(t, "postgres://db/chat?sslmode=disable", normalizeDSN("postgres://db/chat?sslmode=disable"))
	assert.Equal(t, "", normalizeDSN("  "))
}

func TestPoolOptions(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/chat?pool_max_conns=2")
	require.NoError(t, err)

	applyPoolDefaults(cfg)
	WithListeners(1)(cfg)
	WithApplicationName("chatsync-test")(cfg)

	assert.EqualValues(t, 5, cfg.MaxConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, "chatsync-test", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestConnectRequiresDSN(t *testing.T) {
	_, err := Connect(context.Background(), " ")
	assert.ErrorContains(t, err, "DB_URL")
}

func TestSchemaDeclaresChangeTrigger(t *testing.T) {
	s := Schema()
	for _, want := range []string{"chat_messages", "profiles", "pg_notify", "chat_messages_changes"} {
		assert.True(t, strings.Contains(s, want), want)
	}
}

func TestSchemaCapsContentInBytes(t *testing.T) {
	s := Schema()
	assert.Contains(t, s, fmt.Sprintf("octet_length(content) BETWEEN 1 AND %d", chat.MaxContentBytes))
	assert.NotContains(t, s, "char_length")

	// worst case: every content byte escaped to \u00XX, plus the other columns
	const notifyLimit, overhead = 8000, 400
	assert.Less(t, 6*chat.MaxContentBytes+overhead, notifyLimit)
}
