package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krishna-marketing/grocer/internal/domain/customer"
)

// Users resolves the recipient of an order e-mail.
type Users interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

// OutboxConfig sizes the mail worker pool.
type OutboxConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

func (c *OutboxConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// mailJob is a message waiting for its recipient to be resolved.
type mailJob struct {
	userID  string
	orderID string
	msg     Message
}

// Outbox queues order e-mails and sends them from a fixed pool of workers.
// Jobs that do not fit the queue are dropped.
type Outbox struct {
	cfg    OutboxConfig
	mailer Mailer
	users  Users
	lg     *zap.Logger
	jobs   chan mailJob
}

func NewOutbox(mailer Mailer, users Users, lg *zap.Logger, cfg OutboxConfig) *Outbox {
	cfg.setDefaults()
	return &Outbox{
		cfg:    cfg,
		mailer: mailer,
		users:  users,
		lg:     lg,
		jobs:   make(chan mailJob, cfg.QueueSize),
	}
}

// enqueue adds a job without blocking and reports whether it was accepted.
func (o *Outbox) enqueue(j mailJob) bool {
	select {
	case o.jobs <- j:
		return true
	default:
		o.lg.Warn("Mail queue is full, dropping message",
			zap.String("order_id", j.orderID),
			zap.String("subject", j.msg.Subject),
		)
		return false
	}
}

// Backlog is the number of queued messages.
func (o *Outbox) Backlog() int { return len(o.jobs) }

// Run sends queued mail until ctx is done, then drains what is left.
func (o *Outbox) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range o.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case j := <-o.jobs:
					o.deliver(context.WithoutCancel(gctx), j)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "mail workers")
	}
	o.drain()
	return nil
}

func (o *Outbox) drain() {
	for {
		select {
		case j := <-o.jobs:
			o.deliver(context.Background(), j)
		default:
			return
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, j mailJob) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	lg := o.lg.With(zap.String("order_id", j.orderID), zap.String("user_id", j.userID))
	u, err := o.users.Get(ctx, j.userID)
	if err != nil {
		lg.Warn("Resolve mail recipient", zap.Error(err))
		return
	}
	if u.Email == "" {
		return
	}
	msg := j.msg
	msg.To = u.Email
	msg.ToName = u.Name
	if err := o.mailer.Send(ctx, msg); err != nil {
		lg.Warn("Send mail", zap.Error(err), zap.String("subject", msg.Subject))
		return
	}
	lg.Debug("Mail sent", zap.String("subject", msg.Subject))
}
