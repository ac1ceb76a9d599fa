package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, KeyAuthToken, []byte("T1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "T1" {
		t.Fatalf("expected T1, got %q", got)
	}
	if err := s.Delete(ctx, KeyAuthToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreIsolatesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"token", KeyAuthToken, "T1"},
		{"restaurant", KeyRestaurantInfo, `{"Name":"x"}`},
		{"liveness", LivenessPrefix + "last", "2026-01-01T00:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := []byte(tc.value)
			assert.NoError(t, s.Put(ctx, tc.key, buf))
			// 写入后修改调用方切片不得影响已存值
			buf[0] = '!'
			got, err := s.Get(ctx, tc.key)
			assert.NoError(t, err)
			assert.Equal(t, tc.value, string(got), "stored value must be isolated from caller buffer")
		})
	}
	assert.Equal(t, len(cases), s.Len())
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, KeyAuthToken, []byte("T1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	// 覆盖写
	if err := s.Put(ctx, KeyAuthToken, []byte("T2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != "T2" {
		t.Fatalf("expected T2 after reopen, got %q", got)
	}
	if err := s2.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing must not error: %v", err)
	}
}
