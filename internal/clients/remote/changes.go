package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
)

const (
	dialTimeout  = 10 * time.Second
	maxFrameSize = 1 << 20
)

// changesURL turns the API base URL into the change feed websocket URL
func (c *Client) changesURL(table domain.Table, kinds []domain.ChangeKind) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/realtime"

	q := url.Values{}
	q.Set("table", string(table))
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		q.Set("kinds", strings.Join(names, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SubscribeChanges opens the change feed of table. The stream ends when ctx
// is done, the caller closes it, or the connection drops.
func (c *Client) SubscribeChanges(ctx context.Context, table domain.Table, kinds []domain.ChangeKind) (domain.ChangeStream, error) {
	wsURL, err := c.changesURL(table, kinds)
	if err != nil {
		return nil, err
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	conn, resp, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			var apiErr apiError
			if resp.Body != nil {
				_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			}
			return nil, fmt.Errorf("%w: subscribe %s: status %d", sentinelFor(resp.StatusCode, apiErr.Code), table, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: subscribe %s: %w", domain.ErrNetwork, table, err)
	}
	conn.SetReadLimit(maxFrameSize)

	connCtx, connCancel := context.WithCancel(context.Background())
	stream := events.NewQueueStream(func() {
		connCancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	log := c.log.With().Str("table", string(table)).Logger()
	log.Debug().Msg("Subscribed to change feed")

	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stream.Done():
		}
	}()

	go func() {
		defer stream.Close()
		for {
			msgType, frame, err := conn.Read(connCtx)
			if err != nil {
				status := websocket.CloseStatus(err)
				switch {
				case connCtx.Err() != nil:
					log.Debug().Msg("Change feed closed")
				case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
					log.Info().Int("status", int(status)).Msg("Change feed closed by server")
				default:
					log.Warn().Err(err).Msg("Change feed read failed")
				}
				return
			}
			if msgType != websocket.MessageBinary {
				log.Debug().Int("type", int(msgType)).Msg("Ignoring non-binary frame")
				continue
			}

			var ev domain.ChangeEvent
			if err := msgpack.Unmarshal(frame, &ev); err != nil {
				log.Warn().Err(err).Msg("Failed to decode change frame")
				continue
			}
			stream.Push(ev)
		}
	}()

	return stream, nil
}
