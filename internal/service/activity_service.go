package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/request-tracker/internal/domain"
	"github.com/spec-kit/request-tracker/internal/repository"
	apperrors "github.com/spec-kit/request-tracker/pkg/util"
)

const actorNameCacheTTL = 5 * time.Minute

// ActivityEntry is a timeline row joined with its resolved actor name.
type ActivityEntry struct {
	Log       domain.RequestLog
	ActorName string
}

// ActivityService records the append-only audit trail and reconstructs it for
// display, resolving actor identities lazily.
type ActivityService struct {
	logs     repository.RequestLogRepository
	profiles repository.ProfileRepository
	cache    *redis.Client
	logger   *zap.Logger
}

// ActivityDependencies bundles collaborators for the activity service. Cache
// is optional; without it every resolution hits the profiles table.
type ActivityDependencies struct {
	LogRepo     repository.RequestLogRepository
	ProfileRepo repository.ProfileRepository
	Cache       *redis.Client
	Logger      *zap.Logger
}

// NewActivityService constructs the service.
func NewActivityService(deps ActivityDependencies) *ActivityService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		logs:     deps.LogRepo,
		profiles: deps.ProfileRepo,
		cache:    deps.Cache,
		logger:   logger,
	}
}

// Append writes an immutable audit line with a server-assigned timestamp.
// Event tags are open-ended text; only non-emptiness is validated.
func (s *ActivityService) Append(ctx context.Context, requestID, event string, details domain.LogDetails) error {
	if strings.TrimSpace(event) == "" {
		return apperrors.NewValidationError("event tag required", nil)
	}
	entry := &domain.RequestLog{
		RequestID: requestID,
		Event:     event,
		Details:   details,
	}
	return s.logs.Create(ctx, entry)
}

// ListForRequest returns the newest-first timeline for a request, each entry
// annotated with a best-effort actor display name. The displayed order comes
// from the log query, never from resolution completion order.
func (s *ActivityService) ListForRequest(ctx context.Context, requestID string) ([]ActivityEntry, error) {
	logs, err := s.logs.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	actorIDs := make(map[string]struct{})
	for _, log := range logs {
		if log.Details == nil {
			continue
		}
		if id := log.Details.ActorRef(); id != "" {
			actorIDs[id] = struct{}{}
		}
	}
	names := s.resolveNames(ctx, actorIDs)

	entries := make([]ActivityEntry, 0, len(logs))
	for _, log := range logs {
		entry := ActivityEntry{Log: log}
		if log.Details != nil {
			if id := log.Details.ActorRef(); id != "" {
				entry.ActorName = names[id]
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// resolveNames looks up each distinct actor concurrently and joins the results
// back by id. Lookups never fail the listing; they degrade to Unknown.
func (s *ActivityService) resolveNames(ctx context.Context, ids map[string]struct{}) map[string]string {
	names := make(map[string]string, len(ids))
	var mu sync.Mutex
	var group errgroup.Group
	for id := range ids {
		id := id
		group.Go(func() error {
			name := s.resolveName(ctx, id)
			mu.Lock()
			names[id] = name
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return names
}

func (s *ActivityService) resolveName(ctx context.Context, id string) string {
	if s.cache != nil {
		if name, err := s.cache.Get(ctx, actorNameKey(id)).Result(); err == nil && name != "" {
			return name
		}
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("actor lookup failed", zap.String("actor_id", id), zap.Error(err))
		}
		return domain.UnknownActorName
	}

	name := profile.DisplayName()
	if s.cache != nil {
		if err := s.cache.Set(ctx, actorNameKey(id), name, actorNameCacheTTL).Err(); err != nil {
			s.logger.Debug("actor name cache write failed", zap.Error(err))
		}
	}
	return name
}

func actorNameKey(id string) string {
	return "actor:name:" + id
}
