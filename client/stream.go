package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Alan-crt/todo-app/domain"
)

const (
	streamReconnectDelay = time.Second
	streamMaxReconnects  = 10
)

// Follow consumes the service's SSE stream and commits every pushed task
// snapshot into the session cache as authoritative, superseding any staged
// optimistic values. It returns when ctx is cancelled or the reconnect
// budget is exhausted; Degraded reports which.
//
// Tasks that disappear from a snapshot are evicted, so deletions made in
// other sessions do not linger as stale cache hits.
func (c *Client) Follow(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.followOnce(ctx, &attempts); err != nil && ctx.Err() == nil {
			c.logger.Warnf("stream disconnected: %v", err)
		}
		if ctx.Err() != nil {
			return
		}

		attempts++
		if attempts > streamMaxReconnects {
			c.degraded.Store(true)
			c.logger.Errorf("stream: reconnect budget exhausted after %d attempts", streamMaxReconnects)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamReconnectDelay):
		}
	}
}

// Degraded reports whether the stream follower gave up reconnecting. A
// degraded session should poll FetchTasks or surface an offline indicator.
func (c *Client) Degraded() bool {
	return c.degraded.Load()
}

func (c *Client) followOnce(ctx context.Context, attempts *int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFromStatus(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		*attempts = 0
		c.applySnapshot(strings.TrimPrefix(line, "data: "))
	}
	return scanner.Err()
}

func (c *Client) applySnapshot(payload string) {
	var snapshot struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := sonic.UnmarshalString(payload, &snapshot); err != nil {
		c.logger.Errorf("stream: unable to parse snapshot: %v", err)
		return
	}

	alive := make(map[string]struct{}, len(snapshot.Tasks))
	for _, t := range snapshot.Tasks {
		alive[t.ID] = struct{}{}
		c.tasks.Commit(t.ID, t)
	}
	for _, id := range c.tasks.Keys() {
		if _, ok := alive[id]; !ok {
			c.tasks.Evict(id)
		}
	}
}
