package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	assert.Equal(t, time.Second, c.DialTimeout)
	assert.Equal(t, 500*time.Millisecond, c.ReadTimeout)
	assert.Equal(t, 20, c.PoolSize)
}

func TestNewRedis_RequiresAddr(t *testing.T) {
	_, err := NewRedis(RedisConfig{})
	require.Error(t, err)
}

func TestNewRedis_DoesNotDial(t *testing.T) {
	rdb, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"})
	require.NoError(t, err)
	defer rdb.Close()

	assert.Equal(t, "127.0.0.1:1", rdb.Options().Addr)
}

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	assert.Equal(t, 5, c.MaxOpenConns)
	assert.Equal(t, 10, c.MaxIdleConns)
	assert.Equal(t, 3*time.Second, c.PingTimeout)
}
