package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/whisper/comment-moderator/internal/protocol"
)

// Publisher publishes results. *messaging.NATSClient satisfies it.
type Publisher interface {
	PublishModerationResult(commentID string, data []byte) error
}

// Worker serves check requests arriving over NATS. Each message is handled
// on its own goroutine, at most maxConcurrent at a time.
type Worker struct {
	svc    *Service
	pub    Publisher
	sem    *semaphore.Weighted
	size   int64
	ctx    context.Context
	logger *slog.Logger
}

// NewWorker creates a Worker. ctx bounds every request it handles; cancel it
// to abandon in-flight work on shutdown.
func NewWorker(ctx context.Context, svc *Service, pub Publisher, maxConcurrent int, logger *slog.Logger) *Worker {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		svc:    svc,
		pub:    pub,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		size:   int64(maxConcurrent),
		ctx:    ctx,
		logger: logger.With("component", "worker"),
	}
}

// HandleMsg is the nats.MsgHandler for comments.moderation.check. It blocks
// while the worker is at capacity, which applies backpressure to the
// subscription.
func (w *Worker) HandleMsg(msg *nats.Msg) {
	if err := w.sem.Acquire(w.ctx, 1); err != nil {
		return
	}
	go func() {
		defer w.sem.Release(1)
		w.Handle(w.ctx, msg.Data, replier(msg))
	}()
}

// Wait blocks until every in-flight request has finished or ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	if err := w.sem.Acquire(ctx, w.size); err != nil {
		return err
	}
	w.sem.Release(w.size)
	return nil
}

// Handle processes one serialized request. The result is published on the
// comment's result subject and, when reply is non-nil, sent back to the
// requester. Requests that cannot be moderated get an ErrorResponse reply.
func (w *Worker) Handle(ctx context.Context, data []byte, reply func([]byte) error) {
	req, err := protocol.ParseCheckRequest(data, true)
	if err != nil {
		w.logger.Warn("invalid check request", "error", err)
		w.respondError(reply, protocol.ErrorResponse{Code: protocol.CodeBadRequest, Message: err.Error()})
		return
	}

	res, err := w.svc.Check(ctx, req)
	if errors.Is(err, ErrRateLimited) {
		w.respondError(reply, protocol.ErrorResponse{
			Code:       protocol.CodeRateLimited,
			Message:    "too many comments, slow down",
			RetryAfter: 60,
		})
		return
	}
	if err != nil {
		w.logger.Error("check failed", "comment_id", req.CommentID, "error", err)
		w.respondError(reply, protocol.ErrorResponse{Code: protocol.CodeInternal, Message: "moderation failed"})
		return
	}

	out, err := json.Marshal(res)
	if err != nil {
		w.logger.Error("failed to marshal result", "comment_id", req.CommentID, "error", err)
		return
	}
	if w.pub != nil {
		if err := w.pub.PublishModerationResult(req.CommentID, out); err != nil {
			w.logger.Error("failed to publish result", "comment_id", req.CommentID, "error", err)
		}
	}
	if reply != nil {
		if err := reply(out); err != nil {
			w.logger.Warn("failed to reply", "comment_id", req.CommentID, "error", err)
		}
	}
}

func (w *Worker) respondError(reply func([]byte) error, resp protocol.ErrorResponse) {
	if reply == nil {
		return
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := reply(out); err != nil {
		w.logger.Warn("failed to reply", "error", err)
	}
}

func replier(msg *nats.Msg) func([]byte) error {
	if msg.Reply == "" {
		return nil
	}
	return msg.Respond
}
