package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestAgentPositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.SetAgentPosition(ctx, "agent-1", 41.0082, 28.9784, 2*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	lat, lon, ok, err := client.GetAgentPosition(ctx, "agent-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if lat != 41.0082 || lon != 28.9784 {
		t.Fatalf("unexpected position %f,%f", lat, lon)
	}
}

func TestAgentPositionMiss(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	_, _, ok, err := client.GetAgentPosition(ctx, "missing")
	if err != nil {
		t.Fatalf("miss should not error, got %v", err)
	}
	if ok {
		t.Fatalf("expected cache miss")
	}
}

func TestAgentPositionMalformed(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	mock.data[client.AgentPositionKey("agent-1")] = "garbage"
	if _, _, _, err := client.GetAgentPosition(ctx, "agent-1"); err == nil {
		t.Fatalf("expected malformed value error")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.AgentPositionKey("agent-1"); got != "dispatch:agent_pos:agent-1" {
		t.Fatalf("unexpected position key %s", got)
	}
	if got := client.CounterKey("hits"); got != "dispatch:counter:hits" {
		t.Fatalf("unexpected counter key %s", got)
	}
}

func TestDelRemovesKeys(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := client.Del(ctx, "k1"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "k1"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
