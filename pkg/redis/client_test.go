package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestKeyBuilders(t *testing.T) {
	client := &Client{namespace: "inv"}
	if got := client.DocumentKey("items", "abc"); got != "inv:items:doc:abc" {
		t.Fatalf("unexpected document key %s", got)
	}
	if got := client.IndexKey("items"); got != "inv:items:index" {
		t.Fatalf("unexpected index key %s", got)
	}
	if got := client.ChangesChannel("items"); got != "inv:items:changes" {
		t.Fatalf("unexpected changes channel %s", got)
	}
	if got := (&Client{}).IndexKey(" items "); got != "arinv:items:index" {
		t.Fatalf("empty namespace should fall back to default, got %s", got)
	}
}

func TestServerTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	client := &Client{store: &mockCmdable{now: want}}

	got, err := client.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %s got %s", want, got)
	}
}

func TestPingPropagatesErrors(t *testing.T) {
	boom := errors.New("connection refused")
	client := &Client{store: &mockCmdable{pingErr: boom}}
	if err := client.Ping(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected ping error, got %v", err)
	}
	if err := (&Client{}).Ping(context.Background()); err == nil {
		t.Fatalf("expected error for uninitialized client")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@localhost:6380/3",
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 3 || opts.Password != "secret" {
		t.Fatalf("unexpected options from url: %+v", opts)
	}
	if opts.PoolSize != 7 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("pool settings not applied: %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	if err != nil {
		t.Fatalf("address config: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 2 {
		t.Fatalf("unexpected options from address: %+v", opts)
	}
}

type mockCmdable struct {
	now     time.Time
	pingErr error
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.pingErr)
}

func (m *mockCmdable) Time(context.Context) *redis.TimeCmd {
	return redis.NewTimeCmdResult(m.now, nil)
}
