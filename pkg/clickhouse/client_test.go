package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions(t *testing.T) {
	opts := BuildOptions(ClientConfig{
		Host:         "ch.local",
		Port:         9000,
		Database:     "fmpull",
		User:         "reader",
		Password:     "p@ss",
		MaxOpenConns: 4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
	})

	assert.Equal(t, []string{"ch.local:9000"}, opts.Addr)
	assert.Equal(t, clickhouse.Native, opts.Protocol)
	assert.Equal(t, clickhouse.Auth{Database: "fmpull", Username: "reader", Password: "p@ss"}, opts.Auth)
	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 30, opts.Settings["max_execution_time"])
}

func TestBuildOptionsHTTP(t *testing.T) {
	opts := BuildOptions(ClientConfig{Host: "ch.local", Port: 8123, UseHTTP: true})
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
	assert.Empty(t, opts.Settings)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithDatabase("x"))
	require.Error(t, err)
}
