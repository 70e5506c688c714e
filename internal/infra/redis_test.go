package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected empty url to fail")
	}
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatal("expected empty database url to fail")
	}
}
