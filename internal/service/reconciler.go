package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/metrics"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/repository"
	"go.uber.org/zap"
)

const DefaultReconcileCron = "*/5 * * * *"

// ReconcilerOptions tunes the sweep; zero values fall back to defaults
type ReconcilerOptions struct {
	Cron      string
	BatchSize int
	// Grace skips conversations whose latest message is younger than this,
	// leaving in-flight sends alone
	Grace time.Duration
}

// Report summarizes one sweep
type Report struct {
	Scanned          int
	LastMessageFixed int
	UnreadRecounted  int
	Skipped          int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Reconciler repairs conversations whose last-message pointer or unread
// counters fell behind the message log, e.g. after a crash between the
// append and the follow-up updates of a send
type Reconciler struct {
	convs   repository.ConversationStore
	msgs    repository.MessageStore
	opts    ReconcilerOptions
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReconciler(convs repository.ConversationStore, msgs repository.MessageStore, opts ReconcilerOptions, log *zap.Logger, m *metrics.Metrics) (*Reconciler, error) {
	if opts.Cron == "" {
		opts.Cron = DefaultReconcileCron
	}
	if !gronx.IsValid(opts.Cron) {
		return nil, fmt.Errorf("invalid reconcile cron expression: %q", opts.Cron)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		convs:   convs,
		msgs:    msgs,
		opts:    opts,
		log:     log.Named("reconciler"),
		metrics: m,
		now:     time.Now,
	}, nil
}

// RunOnce sweeps every conversation in id order
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{StartedAt: r.now().UTC()}
	after := uuid.Nil
	for {
		ids, err := r.convs.ScanIDs(ctx, after, r.opts.BatchSize)
		if err != nil {
			return rep, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if err := r.check(ctx, id, &rep); err != nil {
				r.log.Warn("conversation check failed", zap.Stringer("conversation_id", id), zap.Error(err))
			}
		}
		after = ids[len(ids)-1]
	}

	rep.FinishedAt = r.now().UTC()
	r.metrics.ReconcileDone()
	r.log.Info("sweep finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("last_message_fixed", rep.LastMessageFixed),
		zap.Int("unread_recounted", rep.UnreadRecounted),
		zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

func (r *Reconciler) check(ctx context.Context, convID uuid.UUID, rep *Report) error {
	conv, err := r.convs.Get(ctx, convID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rep.Scanned++

	latest, err := r.msgs.Latest(ctx, convID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.opts.Grace > 0 && r.now().Sub(latest.CreatedAt) < r.opts.Grace {
		rep.Skipped++
		return nil
	}

	repaired := false
	if latest.Seq > conv.LastMessageSeq {
		if err := r.convs.UpdateLastMessage(ctx, convID, latest.ID, latest.Seq, latest.CreatedAt); err != nil {
			return err
		}
		rep.LastMessageFixed++
		r.metrics.Repaired("last_message")
		r.log.Info("last message repaired",
			zap.Stringer("conversation_id", convID),
			zap.Int64("stored_seq", conv.LastMessageSeq),
			zap.Int64("log_seq", latest.Seq))
		repaired = true
	}

	drift, err := r.unreadDrift(ctx, conv)
	if err != nil {
		return err
	}
	if repaired || drift {
		if err := r.convs.RecountUnread(ctx, convID); err != nil {
			return err
		}
		rep.UnreadRecounted++
		r.metrics.Repaired("unread")
	}
	return nil
}

// unreadDrift reports whether any active participant's stored unread count
// disagrees with the message log
func (r *Reconciler) unreadDrift(ctx context.Context, conv *model.Conversation) (bool, error) {
	for id, p := range conv.Participants {
		if !p.Active() {
			continue
		}
		n, err := r.msgs.CountUnread(ctx, conv.ID, p.LastReadSeq, id)
		if err != nil {
			return false, err
		}
		if n != p.UnreadCount {
			return true, nil
		}
	}
	return false, nil
}

// Start runs a sweep immediately and then on the cron schedule until ctx is done
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.runLogged(ctx)
		for {
			next, err := gronx.NextTickAfter(r.opts.Cron, r.now().UTC(), false)
			if err != nil {
				r.log.Error("next tick failed", zap.String("cron", r.opts.Cron), zap.Error(err))
				return
			}
			select {
			case <-ctx.Done():
				r.log.Info("scheduler stopping")
				return
			case <-time.After(time.Until(next)):
				r.runLogged(ctx)
			}
		}
	}()
	r.log.Info("scheduler started", zap.String("cron", r.opts.Cron))
}

func (r *Reconciler) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Error("sweep failed", zap.Error(err))
	}
}
