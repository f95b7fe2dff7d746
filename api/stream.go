package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/Alan-crt/todo-app/domain"
)

// StreamBroker wakes connected SSE sessions when a change event lands on the
// live channel. Invalidation is deliberately coarse: every session refetches
// its own visible tasks rather than patching in the delta.
type StreamBroker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewStreamBroker creates an empty broker.
func NewStreamBroker() *StreamBroker {
	return &StreamBroker{subs: make(map[chan struct{}]struct{})}
}

func (b *StreamBroker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *StreamBroker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Notify wakes every subscribed session. Duplicate notifications collapse
// into the pending one; a refetch triggered twice is harmless.
func (b *StreamBroker) Notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// RegisterStream wires the SSE endpoint on the given Echo instance.
func RegisterStream(e *echo.Echo, store Storage, auth Authenticator, broker *StreamBroker) {
	e.GET("/stream", streamTasks(store, auth, broker))
}

const streamKeepAlive = 30 * time.Second

func streamTasks(store Storage, auth Authenticator, broker *StreamBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "stream unsupported"})
		}

		updates := broker.subscribe()
		defer broker.unsubscribe(updates)

		ctx := c.Request().Context()
		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		push := func() error {
			listIDs, err := visibleListIDs(c, store, userID)
			if err != nil {
				c.Logger().Errorf("stream refetch: %v", err)
				return nil
			}
			tasks := []domain.Task{}
			for _, listID := range listIDs {
				listTasks, err := store.TasksForList(ctx, listID)
				if err != nil {
					c.Logger().Errorf("stream refetch: %v", err)
					return nil
				}
				tasks = append(tasks, listTasks...)
			}
			domain.SortForDisplay(tasks)
			data, err := sonic.Marshal(tasksResponse{Tasks: tasks})
			if err != nil {
				c.Logger().Errorf("stream encode: %v", err)
				return nil
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		if err := push(); err != nil {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-updates:
				if err := push(); err != nil {
					return nil
				}
			case <-keepAlive.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
