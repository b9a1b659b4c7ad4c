package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bairro/internal/config"
	"bairro/internal/domain"
	"bairro/internal/events"
	"bairro/internal/metrics"
	"bairro/internal/models"
	"bairro/internal/remote"
	"bairro/internal/store"
)

// Coordinator owns the background sync lifecycle: connectivity tracking,
// periodic replay of the pending-operation queue, cache refresh, and the
// offline-first write path. A single Coordinator runs per process.
type Coordinator struct {
	remote  domain.RemoteAPI
	queue   domain.OperationQueue
	mirror  domain.BusinessMirror
	book    domain.SyncBookkeeper
	cache   domain.ResponseCache
	session domain.SessionManager
	events  domain.EventPublisher
	logger  zerolog.Logger

	syncCfg config.SyncConfig
	authCfg config.AuthConfig
	limiter *rate.Limiter

	stateMu sync.Mutex
	state   State

	online     atomic.Bool
	inProgress atomic.Bool

	trigger chan struct{}
}

func NewCoordinator(
	api domain.RemoteAPI,
	queue domain.OperationQueue,
	mirror domain.BusinessMirror,
	book domain.SyncBookkeeper,
	responseCache domain.ResponseCache,
	session domain.SessionManager,
	bus domain.EventPublisher,
	syncCfg config.SyncConfig,
	authCfg config.AuthConfig,
	logger *zerolog.Logger,
) *Coordinator {
	replayRate := syncCfg.ReplayRate
	if replayRate <= 0 {
		replayRate = 5
	}
	c := &Coordinator{
		remote:  api,
		queue:   queue,
		mirror:  mirror,
		book:    book,
		cache:   responseCache,
		session: session,
		events:  bus,
		logger:  logger.With().Str("component", "sync").Logger(),
		syncCfg: syncCfg,
		authCfg: authCfg,
		limiter: rate.NewLimiter(rate.Limit(replayRate), 1),
		state:   StateIdle,
		trigger: make(chan struct{}, 1),
	}
	c.online.Store(true)
	return c
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// transition moves the machine to the requested state if the validity
// table allows it. An invalid transition is logged and refused, which
// lets a pass interrupted by a connectivity drop stay offline.
func (c *Coordinator) transition(to State) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == to {
		return true
	}
	if !transitionValid(c.state, to) {
		c.logger.Warn().
			Stringer("from", c.state).
			Stringer("to", to).
			Msg("rejected state transition")
		return false
	}
	c.logger.Debug().Stringer("from", c.state).Stringer("to", to).Msg("state transition")
	c.state = to
	return true
}

// IsOnline reports the last connectivity probe result.
func (c *Coordinator) IsOnline() bool {
	return c.online.Load()
}

// Run drives the coordinator until ctx is cancelled: a connectivity
// probe ticker, a periodic sync ticker, a session-expiry checker, and
// manual triggers all funnel into the same single-flight pass.
func (c *Coordinator) Run(ctx context.Context) {
	probe := time.NewTicker(c.syncCfg.ConnectivityProbe.Std())
	defer probe.Stop()
	syncTick := time.NewTicker(c.syncCfg.Interval.Std())
	defer syncTick.Stop()
	authTick := time.NewTicker(c.authCfg.CheckInterval.Std())
	defer authTick.Stop()

	c.probeConnectivity(ctx)
	c.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("sync coordinator stopped")
			return
		case <-probe.C:
			c.probeConnectivity(ctx)
		case <-syncTick.C:
			c.runPass(ctx)
		case <-authTick.C:
			c.checkSession(ctx)
		case <-c.trigger:
			c.runPass(ctx)
		}
	}
}

// TriggerSync requests a pass outside the regular cadence. Requests
// arriving while a pass runs coalesce into at most one follow-up.
func (c *Coordinator) TriggerSync() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Coordinator) probeConnectivity(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	nowOnline := c.remote.CheckConnectivity(probeCtx)
	wasOnline := c.online.Swap(nowOnline)
	if wasOnline == nowOnline {
		return
	}

	if !nowOnline {
		c.logger.Warn().Msg("connectivity lost")
		c.transition(StateOffline)
		return
	}

	c.logger.Info().Msg("connectivity restored")
	pending, err := c.queue.PendingCount(ctx)
	if err == nil && pending > 0 {
		c.TriggerSync()
		return
	}
	c.transition(StateIdle)
}

func (c *Coordinator) checkSession(ctx context.Context) {
	if !c.online.Load() || !c.session.IsAuthenticated() {
		return
	}
	if !c.session.IsExpiringSoon(c.authCfg.RefreshThreshold.Std()) {
		return
	}
	if c.session.Refresh(ctx) {
		c.logger.Info().Msg("session refreshed ahead of expiry")
		return
	}
	c.logger.Warn().Msg("proactive session refresh failed")
	c.publish(events.EventSessionExpired, nil)
}

// runPass replays the pending queue in FIFO order and then refreshes
// cached read data. Concurrent invocations collapse to one pass.
func (c *Coordinator) runPass(ctx context.Context) {
	if !c.inProgress.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("sync already in progress, skipping")
		return
	}
	defer c.inProgress.Store(false)

	if !c.online.Load() {
		c.transition(StateOffline)
		return
	}
	if !c.transition(StateSyncingOperations) {
		return
	}

	startedAt := time.Now()
	ops, err := c.queue.ListPending(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorruptQueue) {
			c.logger.Error().Err(err).Msg("pending queue unreadable, aborting sync pass")
		} else {
			c.logger.Error().Err(err).Msg("listing pending operations failed")
		}
		metrics.IncSyncPass("aborted")
		c.transition(StateIdle)
		return
	}

	c.publish(events.EventSyncStarted, events.SyncEventPayload{StartedAt: startedAt})

	var synced, retained, failed int
	for i := range ops {
		op := ops[i]
		if err := c.limiter.Wait(ctx); err != nil {
			retained += len(ops) - i
			break
		}
		switch c.replayOperation(ctx, &op) {
		case replaySynced:
			synced++
		case replayRetained:
			retained++
		case replayFailed:
			failed++
		}
	}

	if c.transition(StateRefreshingCache) {
		c.refreshCachedData(ctx)
		c.transition(StateIdle)
	}

	if pending, err := c.queue.PendingCount(ctx); err == nil {
		metrics.SetPendingDepth(pending)
	}

	metrics.IncSyncPass("completed")
	endedAt := time.Now()
	c.publish(events.EventSyncCompleted, events.SyncEventPayload{
		Synced:    synced,
		Retained:  retained,
		Failed:    failed,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
	})
	c.logger.Info().
		Int("synced", synced).
		Int("retained", retained).
		Int("failed", failed).
		Dur("took", time.Since(startedAt)).
		Msg("sync pass finished")
}

type replayOutcome int

const (
	replaySynced replayOutcome = iota
	replayRetained
	replayFailed
)

// replayOperation executes one queued mutation and classifies the
// result: success dequeues, an expired token is refreshed with the
// operation kept for the next pass, a permanent rejection is dropped
// and reported, and anything else stays queued for retry.
func (c *Coordinator) replayOperation(ctx context.Context, op *models.PendingOperation) replayOutcome {
	err := c.executeOperation(ctx, op)
	if err == nil {
		if derr := c.queue.Dequeue(ctx, op.ID); derr != nil {
			c.logger.Error().Err(derr).Str("operation_id", op.ID).Msg("dequeue after success failed")
		}
		metrics.IncOperationReplayed("synced")
		c.publish(events.EventOperationSynced, events.OperationEventPayload{
			OperationID: op.ID,
			Type:        op.Type,
			BusinessID:  op.BusinessID,
			Attempts:    op.Attempts + 1,
		})
		return replaySynced
	}

	switch {
	case remote.IsAuthExpired(err):
		if c.session.Refresh(ctx) {
			c.retain(ctx, op, err)
			return replayRetained
		}
		c.publish(events.EventSessionExpired, nil)
		c.fail(ctx, op, "credentials invalid and refresh failed", err)
		return replayFailed

	case remote.IsPermanent(err):
		c.fail(ctx, op, fmt.Sprintf("rejected by server (status %d)", remote.StatusOf(err)), err)
		return replayFailed

	default:
		c.retain(ctx, op, err)
		return replayRetained
	}
}

func (c *Coordinator) retain(ctx context.Context, op *models.PendingOperation, cause error) {
	if err := c.queue.RecordAttempt(ctx, op.ID, cause.Error()); err != nil {
		c.logger.Error().Err(err).Str("operation_id", op.ID).Msg("recording attempt failed")
	}
	metrics.IncOperationReplayed("retained")
	c.logger.Warn().
		Err(cause).
		Str("operation_id", op.ID).
		Str("type", op.Type).
		Msg("operation kept for next pass")
}

func (c *Coordinator) fail(ctx context.Context, op *models.PendingOperation, reason string, cause error) {
	if err := c.queue.MarkFailed(ctx, op.ID, cause.Error()); err != nil {
		c.logger.Error().Err(err).Str("operation_id", op.ID).Msg("marking operation failed")
	}
	metrics.IncOperationReplayed("failed")
	c.publish(events.EventOperationFailed, events.OperationEventPayload{
		OperationID: op.ID,
		Type:        op.Type,
		BusinessID:  op.BusinessID,
		StatusCode:  remote.StatusOf(cause),
		Reason:      reason,
		Attempts:    op.Attempts + 1,
	})
	c.logger.Error().
		Err(cause).
		Str("operation_id", op.ID).
		Str("type", op.Type).
		Str("business_id", op.BusinessID).
		Msg("operation permanently failed")
}

func (c *Coordinator) executeOperation(ctx context.Context, op *models.PendingOperation) error {
	switch op.Type {
	case models.OpCreateBusiness:
		var b models.Business
		if err := json.Unmarshal([]byte(op.Payload), &b); err != nil {
			return fmt.Errorf("decoding create payload: %w", err)
		}
		b.ID = ""
		b.SyncStatus = ""
		created, err := c.remote.CreateBusiness(ctx, &b)
		if err != nil {
			return err
		}
		if op.BusinessID != "" {
			if derr := c.mirror.DeleteBusinessLocal(ctx, op.BusinessID); derr != nil {
				c.logger.Error().Err(derr).Str("business_id", op.BusinessID).Msg("dropping temporary business failed")
			}
		}
		if created != nil {
			if uerr := c.mirror.UpsertBusiness(ctx, created); uerr != nil {
				c.logger.Error().Err(uerr).Str("business_id", created.ID).Msg("mirroring created business failed")
			}
		}
		return nil

	case models.OpUpdateBusiness:
		var b models.Business
		if err := json.Unmarshal([]byte(op.Payload), &b); err != nil {
			return fmt.Errorf("decoding update payload: %w", err)
		}
		b.SyncStatus = ""
		updated, err := c.remote.UpdateBusiness(ctx, op.BusinessID, &b)
		if err != nil {
			return err
		}
		if updated != nil {
			if uerr := c.mirror.UpsertBusiness(ctx, updated); uerr != nil {
				c.logger.Error().Err(uerr).Str("business_id", updated.ID).Msg("mirroring updated business failed")
			}
		}
		return nil

	case models.OpDeleteBusiness:
		return c.remote.DeleteBusiness(ctx, op.BusinessID)

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// refreshCachedData repopulates the read caches and the confirmed local
// mirror from the server. Failures here are logged and swallowed, the
// previous cached data stays in place.
func (c *Coordinator) refreshCachedData(ctx context.Context) {
	categories, err := c.remote.Categories(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("category refresh failed")
	} else {
		c.cache.Set(ctx, models.EndpointCategories, nil, categories)
	}

	businesses, err := c.remote.Businesses(ctx, models.BusinessFilter{})
	if err != nil {
		c.logger.Warn().Err(err).Msg("business refresh failed")
	} else {
		c.cache.Set(ctx, models.EndpointBusinesses, nil, businesses)
		if merr := c.mirror.ReplaceConfirmed(ctx, businesses); merr != nil {
			c.logger.Error().Err(merr).Msg("replacing confirmed mirror failed")
		}
	}

	if err := c.book.SetLastSyncTime(ctx, time.Now()); err != nil {
		c.logger.Error().Err(err).Msg("recording last sync time failed")
	}
}

// Status reports the externally visible sync snapshot.
func (c *Coordinator) Status(ctx context.Context) models.SyncStatus {
	status := models.SyncStatus{
		IsOnline:       c.online.Load(),
		SyncInProgress: c.inProgress.Load(),
	}
	if n, err := c.queue.PendingCount(ctx); err == nil {
		status.PendingCount = n
	}
	if t, err := c.book.LastSyncTime(ctx); err == nil {
		status.LastSyncTime = t
	}
	return status
}

// CreateBusiness stores a new business offline-first. Online, the
// remote call runs directly; on failure the operation is queued and the
// error is propagated. Offline, a temporary record is synthesized and
// queued for later replay.
func (c *Coordinator) CreateBusiness(ctx context.Context, b *models.Business) (*models.Business, error) {
	if c.online.Load() {
		created, err := c.remote.CreateBusiness(ctx, b)
		if err == nil {
			if uerr := c.mirror.UpsertBusiness(ctx, created); uerr != nil {
				c.logger.Error().Err(uerr).Msg("mirroring created business failed")
			}
			c.invalidateLists(ctx)
			return created, nil
		}
		if qerr := c.enqueueLocal(ctx, models.OpCreateBusiness, b); qerr != nil {
			return nil, errors.Join(err, qerr)
		}
		return nil, err
	}

	local := *b
	local.ID = models.TempIDPrefix + uuid.New().String()
	local.SyncStatus = models.SyncStatusPendingSync
	if err := c.mirror.UpsertBusiness(ctx, &local); err != nil {
		return nil, fmt.Errorf("storing business locally: %w", err)
	}
	if err := c.enqueueLocal(ctx, models.OpCreateBusiness, &local); err != nil {
		return nil, err
	}
	return &local, nil
}

// UpdateBusiness applies an edit offline-first, mirroring the create
// path: direct call when online, queued with a pending marker when not.
func (c *Coordinator) UpdateBusiness(ctx context.Context, id string, b *models.Business) (*models.Business, error) {
	if c.online.Load() {
		updated, err := c.remote.UpdateBusiness(ctx, id, b)
		if err == nil {
			if uerr := c.mirror.UpsertBusiness(ctx, updated); uerr != nil {
				c.logger.Error().Err(uerr).Msg("mirroring updated business failed")
			}
			c.invalidateLists(ctx)
			return updated, nil
		}
		local := *b
		local.ID = id
		if qerr := c.enqueueLocal(ctx, models.OpUpdateBusiness, &local); qerr != nil {
			return nil, errors.Join(err, qerr)
		}
		return nil, err
	}

	local := *b
	local.ID = id
	local.SyncStatus = models.SyncStatusPendingSync
	if err := c.mirror.UpsertBusiness(ctx, &local); err != nil {
		return nil, fmt.Errorf("storing business locally: %w", err)
	}
	if err := c.enqueueLocal(ctx, models.OpUpdateBusiness, &local); err != nil {
		return nil, err
	}
	return &local, nil
}

// DeleteBusiness removes a business. The local mirror drop happens
// immediately in both modes so reads stop returning the record at once.
func (c *Coordinator) DeleteBusiness(ctx context.Context, id string) error {
	if err := c.mirror.DeleteBusinessLocal(ctx, id); err != nil {
		c.logger.Error().Err(err).Str("business_id", id).Msg("deleting business locally failed")
	}

	if c.online.Load() {
		err := c.remote.DeleteBusiness(ctx, id)
		if err == nil {
			c.invalidateLists(ctx)
			return nil
		}
		if qerr := c.enqueueDelete(ctx, id); qerr != nil {
			return errors.Join(err, qerr)
		}
		return err
	}

	return c.enqueueDelete(ctx, id)
}

func (c *Coordinator) enqueueLocal(ctx context.Context, opType string, b *models.Business) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding operation payload: %w", err)
	}
	return c.enqueue(ctx, &models.PendingOperation{
		Type:       opType,
		BusinessID: b.ID,
		Payload:    string(payload),
	})
}

func (c *Coordinator) enqueueDelete(ctx context.Context, id string) error {
	return c.enqueue(ctx, &models.PendingOperation{
		Type:       models.OpDeleteBusiness,
		BusinessID: id,
	})
}

// enqueue persists an operation before any replay attempt. The queue is
// never capped, crossing the configured bound only raises a warning.
func (c *Coordinator) enqueue(ctx context.Context, op *models.PendingOperation) error {
	pending, err := c.queue.PendingCount(ctx)
	if err == nil && c.syncCfg.MaxPending > 0 && pending >= c.syncCfg.MaxPending {
		c.logger.Warn().
			Int("pending", pending).
			Int("max_pending", c.syncCfg.MaxPending).
			Msg("pending queue past configured bound")
		c.publish(events.EventQueueBoundReached, events.QueueBoundPayload{
			PendingCount: pending,
			MaxPending:   c.syncCfg.MaxPending,
		})
	}
	if err := c.queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("enqueueing %s: %w", op.Type, err)
	}
	if n, cerr := c.queue.PendingCount(ctx); cerr == nil {
		metrics.SetPendingDepth(n)
	}
	return nil
}

func (c *Coordinator) invalidateLists(ctx context.Context) {
	if err := c.cache.Remove(ctx, models.EndpointBusinesses, nil); err != nil {
		c.logger.Warn().Err(err).Msg("invalidating business cache failed")
	}
}

func (c *Coordinator) publish(eventType string, payload interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishJSON(eventType, payload); err != nil {
		c.logger.Warn().Err(err).Str("event", eventType).Msg("publishing event failed")
	}
}
