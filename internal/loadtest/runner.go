package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/comment-moderator/internal/messaging"
	"github.com/whisper/comment-moderator/internal/protocol"
)

// Requester sends a request and waits for the reply. *nats.Conn satisfies it.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Config describes a load run.
type Config struct {
	Requests    int           // total requests to send
	Concurrency int           // requests in flight at once
	Authors     int           // distinct author IDs to spread requests over; 0 sends anonymous requests
	Interval    time.Duration // delay between launches; 0 sends as fast as Concurrency allows
	Timeout     time.Duration // per-request reply deadline
	Locale      string
	Corpus      []string // comment texts, cycled; empty uses DefaultCorpus
}

// DefaultCorpus mixes comments that exercise every stage of the pipeline.
var DefaultCorpus = []string{
	"Great write-up, thanks for sharing!",
	"I disagree with the second point but the data is interesting.",
	"Does anyone know when the next release is planned?",
	"This is sooooooo good",
	"WHY DOES NOBODY READ THE DOCS BEFORE POSTING",
	"You are a complete idiot and should leave.",
	"Check out my profile for free crypto giveaways",
	"Obrigado pelo artigo, muito útil.",
}

type reply struct {
	protocol.CheckResult
	Code string `json:"code"`
}

// Run sends cfg.Requests check requests and records every reply in c. It
// returns early, without error, when ctx is canceled.
func Run(ctx context.Context, r Requester, cfg Config, c *Collector) error {
	if cfg.Requests <= 0 {
		return fmt.Errorf("loadtest: requests must be positive")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	corpus := cfg.Corpus
	if len(corpus) == 0 {
		corpus = DefaultCorpus
	}
	runID := uuid.NewString()[:8]

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)

	var tick <-chan time.Time
	if cfg.Interval > 0 {
		t := time.NewTicker(cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

launch:
	for i := 0; i < cfg.Requests; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				break launch
			case <-tick:
			}
		} else if ctx.Err() != nil {
			break launch
		}

		req := protocol.CheckRequest{
			CommentID: fmt.Sprintf("lt-%s-%d", runID, i),
			Text:      corpus[i%len(corpus)],
			Locale:    cfg.Locale,
		}
		if cfg.Authors > 0 {
			req.AuthorID = fmt.Sprintf("lt-%s-author-%d", runID, i%cfg.Authors)
		}
		g.Go(func() error {
			send(ctx, r, req, cfg.Timeout, c)
			return nil
		})
	}
	return g.Wait()
}

func send(ctx context.Context, r Requester, req protocol.CheckRequest, timeout time.Duration, c *Collector) {
	data, err := json.Marshal(req)
	if err != nil {
		c.AddFailure()
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	msg, err := r.RequestWithContext(ctx, messaging.SubjectModerationCheck, data)
	elapsed := time.Since(start)
	if err != nil {
		c.AddFailure()
		return
	}

	var rep reply
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		c.AddFailure()
		return
	}
	if rep.Code != "" {
		c.AddErrorResponse(protocol.ErrorResponse{Code: rep.Code}, elapsed)
		return
	}
	c.AddResult(rep.CheckResult, elapsed)
}
