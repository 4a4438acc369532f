package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/utils"
)

const writeWait = 10 * time.Second

// parseKinds reads a comma separated list of change kinds. Empty means all.
func parseKinds(raw string) ([]domain.ChangeKind, error) {
	var kinds []domain.ChangeKind
	for _, k := range utils.ParseCSVUpper(raw) {
		kind := domain.ChangeKind(k)
		if !domain.WantsKind(domain.AllChangeKinds, kind) {
			return nil, fmt.Errorf("%w: unknown change kind %q", domain.ErrValidation, k)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// handleRealtime handles GET /api/realtime?table=...&kinds=... by upgrading
// to a websocket and writing one msgpack binary frame per change event.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	table := domain.Table(r.URL.Query().Get("table"))
	if !table.Valid() {
		s.writeError(w, r, fmt.Errorf("%w: %q", domain.ErrInvalidTable, table))
		return
	}
	kinds, err := parseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Subscribe before completing the handshake so every change committed
	// after the client's dial returns is delivered.
	stream, err := s.backend.SubscribeChanges(r.Context(), table, kinds)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrSubscription, err))
		return
	}
	defer stream.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	// The client never writes; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	log := s.log.With().Str("table", string(table)).Logger()
	log.Info().Msg("Client connected to change feed")

	if err := s.pump(ctx, conn, stream); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Change feed ended")
	}
	log.Info().Msg("Client disconnected from change feed")
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, stream domain.ChangeStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			frame, err := msgpack.Marshal(&ev)
			if err != nil {
				return fmt.Errorf("failed to encode change event: %w", err)
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err = conn.Write(writeCtx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to write change event: %w", err)
			}
		}
	}
}
