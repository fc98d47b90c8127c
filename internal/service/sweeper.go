package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweeperConfig holds configuration for the background sweeper.
type SweeperConfig struct {
	// Interval is how often the sweep runs.
	// Default: 1 minute
	Interval time.Duration

	// ExpireAfter expires pending orders older than this. Zero disables expiry.
	ExpireAfter time.Duration
}

// Sweeper periodically retries failed key deliveries and, when configured,
// expires abandoned pending orders.
type Sweeper struct {
	shop      *Shop
	config    SweeperConfig
	logger    *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	now       func() time.Time
}

// NewSweeper creates a new sweeper.
func NewSweeper(shop *Shop, config SweeperConfig, logger *zap.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if logger == nil {
		logger = zap.L()
	}

	return &Sweeper{
		shop:   shop,
		config: config,
		logger: logger.With(zap.String("component", "sweeper")),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("sweeper_started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("expire_after", s.config.ExpireAfter),
	)

	go s.run()
}

func (s *Sweeper) run() {
	for {
		select {
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stopCh:
			s.logger.Info("sweeper_stopped")
			return
		}
	}
}

// RunNow performs one sweep and reports what it did.
func (s *Sweeper) RunNow() (delivered, expired int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Interval)
	defer cancel()

	delivered, err := s.shop.RetryDeliveries(ctx)
	if err != nil {
		s.logger.Error("sweep_delivery_retry_failed", zap.Error(err))
	} else if delivered > 0 {
		s.logger.Info("sweep_redelivered", zap.Int("orders", delivered))
	}

	if s.config.ExpireAfter > 0 {
		expired, err = s.shop.ExpireStale(ctx, s.config.ExpireAfter, s.now())
		if err != nil {
			s.logger.Error("sweep_expire_failed", zap.Error(err))
		} else if expired > 0 {
			s.logger.Info("sweep_expired", zap.Int("orders", expired))
		}
	}
	return delivered, expired
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
