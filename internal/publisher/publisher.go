// Package publisher drives the scheduled fan-out: on every trigger it
// collects due calendar posts and copies each one to every active
// subscriber, recording delivery in the ledger only after a full pass.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"adventbot/internal/calendar"
	"adventbot/internal/transport"
	"adventbot/pkg/logx"
)

// Calendar is the slice of the content calendar the publisher needs.
type Calendar interface {
	Due(ctx context.Context, now time.Time) ([]calendar.ScheduledPost, error)
	MarkDelivered(ctx context.Context, runAt time.Time) error
}

// Recipients yields the current broadcast audience.
type Recipients interface {
	ActiveIDs(ctx context.Context) ([]int64, error)
}

// Sender is the delivery primitive. Errors are classified with
// transport.ClassOf.
type Sender interface {
	CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) error
}

// Config controls the trigger cadence and send pacing.
type Config struct {
	// Schedule is a cron expression evaluated in Location.
	Schedule string
	// RatePerSec caps outgoing copies per second across the whole tick.
	RatePerSec float64
	Location   *time.Location
	// SourceChatID is the chat holding the original content messages
	// that get copied out to subscribers.
	SourceChatID int64
}

const (
	defaultSchedule   = "* * * * *"
	defaultRatePerSec = 25
)

type Publisher struct {
	cal     Calendar
	rcpt    Recipients
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger

	schedule string
	loc      *time.Location
	srcChat  int64
	now      func() time.Time
}

func New(cfg Config, cal Calendar, rcpt Recipients, sender Sender, log logx.Logger) *Publisher {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Publisher{
		cal:      cal,
		rcpt:     rcpt,
		sender:   sender,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:      log,
		schedule: cfg.Schedule,
		loc:      cfg.Location,
		srcChat:  cfg.SourceChatID,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled or a tick fails fatally. Ticks never
// overlap; a slow tick delays the next trigger.
func (p *Publisher) Run(ctx context.Context) error {
	fatal := make(chan error, 1)

	c := cron.New(
		cron.WithLocation(p.loc),
		cron.WithChain(cron.DelayIfStillRunning(cronLog{p.log})),
	)
	_, err := c.AddFunc(p.schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.tick(ctx, p.now().In(p.loc)); err != nil {
			select {
			case fatal <- err:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("publisher: bad schedule %q: %w", p.schedule, err)
	}

	p.log.Info("publisher started",
		logx.String("schedule", p.schedule),
		logx.String("tz", p.loc.String()))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-fatal:
		return err
	}
}

// tick performs one pass over everything currently due. It returns an
// error only for fatal transport failures; recipient and transient
// failures are absorbed so one bad chat never blocks the rest.
func (p *Publisher) tick(ctx context.Context, now time.Time) error {
	due, err := p.cal.Due(ctx, now)
	if err != nil {
		p.log.Error("publisher: listing due posts failed", logx.Err(err))
		return nil
	}
	if len(due) == 0 {
		return nil
	}

	ids, err := p.rcpt.ActiveIDs(ctx)
	if err != nil {
		p.log.Error("publisher: listing recipients failed", logx.Err(err))
		return nil
	}
	if len(ids) == 0 {
		// Posts stay due and are retried once someone subscribes.
		p.log.Warn("publisher: posts due but no active subscribers",
			logx.Int("due", len(due)))
		return nil
	}

	var totals struct {
		delivered, sent, unreachable, failed int
	}
	for _, post := range due {
		sent, unreachable, failed, err := p.fanOut(ctx, post, ids)
		totals.sent += sent
		totals.unreachable += unreachable
		totals.failed += failed
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Shutdown caught us mid-pass. The post stays unmarked, so
				// the next run re-delivers it to everyone.
				p.log.Warn("publisher: tick interrupted, post stays due",
					logx.Time("run_at", post.RunAt), logx.Int("sent", sent))
				return nil
			}
			return err
		}
		// The ledger entry records that the full pass happened, whatever
		// mix of outcomes the individual sends had.
		if err := p.cal.MarkDelivered(ctx, post.RunAt); err != nil {
			// Storage trouble: stop the tick, the post stays due.
			p.log.Error("publisher: ledger append failed, aborting tick",
				logx.Time("run_at", post.RunAt), logx.Err(err))
			break
		}
		totals.delivered++
	}
	p.log.Info("publisher: tick complete",
		logx.Int("due", len(due)),
		logx.Int("recipients", len(ids)),
		logx.Int("delivered", totals.delivered),
		logx.Int("sent", totals.sent),
		logx.Int("unreachable", totals.unreachable),
		logx.Int("failed", totals.failed))
	return nil
}

// fanOut copies one post to every recipient. Per-recipient failures —
// unreachable chats and transient send errors alike — are logged and
// counted but never hold the post back: the caller marks the post after
// the full pass. The returned error is non-nil only for fatal transport
// failures and context cancellation.
func (p *Publisher) fanOut(ctx context.Context, post calendar.ScheduledPost, ids []int64) (sent, unreachable, failed int, err error) {
	from := transport.MessageRef{ChatID: p.srcChat, MessageID: post.MessageID}
	for _, id := range ids {
		if werr := p.limiter.Wait(ctx); werr != nil {
			return sent, unreachable, failed, werr
		}
		serr := p.sender.CopyMessage(ctx, transport.ChatTarget{ChatID: id}, from)
		if serr == nil {
			sent++
			continue
		}
		if errors.Is(serr, context.Canceled) || errors.Is(serr, context.DeadlineExceeded) {
			return sent, unreachable, failed, serr
		}
		switch transport.ClassOf(serr) {
		case transport.DeliveryRecipient:
			unreachable++
			p.log.Debug("publisher: recipient unreachable",
				logx.Int64("chat_id", id), logx.Err(serr))
		case transport.DeliveryFatal:
			return sent, unreachable, failed,
				fmt.Errorf("publisher: fatal delivery error for chat %d: %w", id, serr)
		default:
			failed++
			p.log.Warn("publisher: delivery failed",
				logx.Int64("chat_id", id), logx.Err(serr))
		}
	}
	return sent, unreachable, failed, nil
}

// cronLog routes cron's internal chatter to the debug level.
type cronLog struct{ log logx.Logger }

func (c cronLog) Info(msg string, kv ...interface{}) {
	c.log.Debug("cron: "+msg, logx.Any("detail", kv))
}

func (c cronLog) Error(err error, msg string, kv ...interface{}) {
	c.log.Error("cron: "+msg, logx.Err(err), logx.Any("detail", kv))
}
