package telegraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/taskline/internal/config"
	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/user"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Daemon is the main Taskline process. It connects to a chat platform via
// an Adapter, pumps inbound messages and votes through a per-user
// serializer into the Controller, and runs the Scheduler alongside.
type Daemon struct {
	db        *gorm.DB
	cfg       *config.Config
	adapter   Adapter
	extractor Extractor
	audio     AudioTranscriber
	image     ImageAnalyzer
	logger    *zap.Logger
	now       func() time.Time
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB        *gorm.DB
	Config    *config.Config
	Adapter   Adapter
	Extractor Extractor
	Audio     AudioTranscriber // optional
	Image     ImageAnalyzer    // optional
	Logger    *zap.Logger
	Now       func() time.Time // defaults to time.Now
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("telegraph: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("telegraph: extractor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Audio == nil {
		logger.Warn("no transcriber configured; voice notes will be declined")
	}
	if opts.Image == nil {
		logger.Warn("no vision provider configured; images will be declined")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Daemon{
		db:        opts.DB,
		cfg:       opts.Config,
		adapter:   opts.Adapter,
		extractor: opts.Extractor,
		audio:     opts.Audio,
		image:     opts.Image,
		logger:    logger,
		now:       now,
	}, nil
}

// Run connects the adapter, builds all subsystems (Controller, Scheduler,
// pending sweeper) and blocks until the context is cancelled. On shutdown
// it closes the adapter and waits for in-flight messages to finish.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("connecting", zap.String("platform", d.cfg.Platform))
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	ctrl, sched, pending, err := d.build()
	if err != nil {
		d.adapter.Close()
		return err
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}
	votes, err := d.adapter.Votes(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: votes: %w", err)
	}

	serial := NewSerializer()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return d.sweepPending(gctx, pending) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg, ok := <-inbound:
				if !ok {
					d.logger.Info("inbound channel closed")
					return errAdapterClosed
				}
				serial.Submit(user.NormalizeHandle(msg.Handle), func() { ctrl.HandleMessage(gctx, msg) })
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case v, ok := <-votes:
				if !ok {
					return errAdapterClosed
				}
				serial.Submit(user.NormalizeHandle(v.Handle), func() { ctrl.HandleVote(gctx, v) })
			}
		}
	})

	d.logger.Info("taskline online")
	err = g.Wait()

	d.logger.Info("shutting down")
	if cerr := d.adapter.Close(); cerr != nil {
		d.logger.Warn("close adapter", zap.Error(cerr))
	}
	serial.Close()
	d.logger.Info("stopped")

	if errors.Is(err, errAdapterClosed) {
		return nil
	}
	return err
}

// errAdapterClosed stops the group when the adapter closes its channels.
var errAdapterClosed = errors.New("telegraph: adapter closed")

// build wires the dialogue and scheduling subsystems from config.
func (d *Daemon) build() (*Controller, *Scheduler, *PendingStore, error) {
	resolver := locale.NewResolver(d.cfg.DefaultTimezone, d.logger.Named("locale"))

	history, err := NewConversationStore(ConversationStoreOpts{
		DB:     d.db,
		Limit:  d.cfg.Conversation.HistoryLimit,
		Logger: d.logger.Named("history"),
		Now:    d.now,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telegraph: build history store: %w", err)
	}

	pending := NewPendingStore(PendingStoreOpts{TTL: d.cfg.PendingTTL(), Now: d.now})

	commands, err := NewCommandHandler(CommandHandlerOpts{
		DB:           d.db,
		Resolver:     resolver,
		DashboardURL: d.cfg.DashboardURL,
		Logger:       d.logger.Named("command"),
		Now:          d.now,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telegraph: build command handler: %w", err)
	}

	ctrl, err := NewController(ControllerOpts{
		DB:            d.db,
		Adapter:       d.adapter,
		Commands:      commands,
		History:       history,
		Pending:       pending,
		Extractor:     d.extractor,
		Audio:         d.audio,
		Image:         d.image,
		Resolver:      resolver,
		Logger:        d.logger.Named("controller"),
		Now:           d.now,
		MenuAfterChat: d.cfg.Conversation.MenuAfterChat,
		PruneKeep:     d.cfg.Conversation.PruneKeep,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telegraph: build controller: %w", err)
	}

	sched, err := NewScheduler(SchedulerOpts{
		DB:           d.db,
		Adapter:      d.adapter,
		Resolver:     resolver,
		Cron:         d.cfg.Scheduler.Cron,
		Lookahead:    d.cfg.Lookahead(),
		Holder:       d.cfg.Scheduler.Instance,
		LeaseTimeout: d.cfg.LeaseTimeout(),
		Logger:       d.logger.Named("scheduler"),
		Now:          d.now,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telegraph: build scheduler: %w", err)
	}
	return ctrl, sched, pending, nil
}

// sweepPending drops expired suggestions once per TTL.
func (d *Daemon) sweepPending(ctx context.Context, pending *PendingStore) error {
	interval := d.cfg.PendingTTL()
	if interval <= 0 {
		interval = DefaultPendingTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := pending.Sweep(now); n > 0 {
				d.logger.Debug("expired suggestions dropped",
					zap.Int("count", n), zap.Int("staged", pending.Len()))
			}
		}
	}
}
