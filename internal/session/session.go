// Package session ties the sync core together for one signed-in user:
// screens hydrate from the local cache, subscribe to their table and keep
// local drafts apart from the server snapshot.
package session

import (
	"context"
	"fmt"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/localcache"
	"github.com/aristath/agrimarket/internal/realtime"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Session is one user's view of the marketplace
type Session struct {
	UserID   string
	Registry *realtime.Registry
	Cache    *localcache.Cache
	Strategy realtime.Strategy

	log zerolog.Logger
}

// New creates a session for userID
func New(userID string, registry *realtime.Registry, cache *localcache.Cache, log zerolog.Logger) *Session {
	return &Session{
		UserID:   userID,
		Registry: registry,
		Cache:    cache,
		Strategy: realtime.FullReload,
		log:      log.With().Str("component", "session").Str("user_id", userID).Logger(),
	}
}

// ScreenSpec describes what a screen shows
type ScreenSpec struct {
	Name  string
	Table domain.Table
	// Filter defaults to the rows owned by the session user.
	Filter domain.Filter
	Kinds  []domain.ChangeKind
	// Strategy defaults to the session strategy.
	Strategy  realtime.Strategy
	KeyColumn string
	// CacheKind defaults to the table's view kind.
	CacheKind localcache.Kind
}

func (s *Session) normalize(spec ScreenSpec) (ScreenSpec, error) {
	if spec.Name == "" {
		return spec, fmt.Errorf("%w: screen name is required", domain.ErrValidation)
	}
	if !spec.Table.Valid() {
		return spec, fmt.Errorf("%w: %s", domain.ErrInvalidTable, spec.Table)
	}
	if spec.Filter == nil {
		spec.Filter = domain.OwnedBy(s.UserID)
	}
	if spec.Strategy == "" {
		spec.Strategy = s.Strategy
	}
	if spec.CacheKind == "" {
		spec.CacheKind = localcache.ViewKind(spec.Table)
	}
	return spec, nil
}

// Mount hydrates a screen from the local cache and subscribes it to its
// table. A failed subscription is logged and leaves the screen degraded,
// serving the cached rows; it is not returned as an error.
func (s *Session) Mount(ctx context.Context, spec ScreenSpec) (*Screen, error) {
	spec, err := s.normalize(spec)
	if err != nil {
		return nil, err
	}

	screen := &Screen{
		session: s,
		spec:    spec,
		drafts:  make(map[string]domain.Row),
		log:     s.log.With().Str("screen", spec.Name).Logger(),
	}

	cached, ok, err := localcache.Load[[]domain.Row](ctx, s.Cache, s.UserID, spec.CacheKind)
	if err != nil {
		screen.log.Warn().Err(err).Msg("Failed to read local cache")
	} else if ok {
		screen.hydrate(cached)
	}

	screen.subscribe(ctx)
	return screen, nil
}

// MountAll mounts screens concurrently. If any mount fails, the screens
// already mounted are unmounted again.
func (s *Session) MountAll(ctx context.Context, specs ...ScreenSpec) ([]*Screen, error) {
	screens := make([]*Screen, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			screen, err := s.Mount(gctx, spec)
			if err != nil {
				return fmt.Errorf("mount %s: %w", spec.Name, err)
			}
			screens[i] = screen
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, screen := range screens {
			if screen != nil {
				screen.Unmount()
			}
		}
		return nil, err
	}
	return screens, nil
}

// Close stops every subscription of the session
func (s *Session) Close() {
	s.Registry.Close()
}
