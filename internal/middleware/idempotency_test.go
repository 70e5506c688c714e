package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/logging"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache
}

// asUser attaches a principal taken from the X-Test-User header.
func asUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.SetUserContext(auth.WithPrincipal(c.UserContext(), auth.Principal{UserID: uid, Role: auth.RoleUser}))
		}
		return c.Next()
	}
}

func setupIdempotentApp(t *testing.T, status int) (*fiber.App, *int32) {
	t.Helper()
	cache := newRedis(t)
	var calls int32
	app := fiber.New()
	app.Use(asUser(), Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(status).JSON(fiber.Map{"call": n})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, key, user string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupIdempotentApp(t, fiber.StatusCreated)
	if status, _ := post(t, app, "", "user-1"); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusCreated)

	status, body := post(t, app, "abc123", "user-1")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}
	status2, body2 := post(t, app, "abc123", "user-1")
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if body2 != body {
		t.Fatalf("expected cached payload %s got %s", body, body2)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusCreated)

	post(t, app, "same-key", "user-1")
	post(t, app, "same-key", "user-2")
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("handler ran %d times, want 2", got)
	}
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusBadGateway)

	post(t, app, "retry-me", "user-1")
	post(t, app, "retry-me", "user-1")
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("handler ran %d times, want 2", got)
	}
}
