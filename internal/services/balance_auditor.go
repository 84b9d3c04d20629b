package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paylog/internal/core"
)

// BalanceAuditorConfig holds configuration for the balance auditor
type BalanceAuditorConfig struct {
	// Interval is how often cached balances are compared with the rows (default: 1h)
	Interval time.Duration

	// Repair recomputes drifting users instead of only reporting them
	Repair bool
}

func DefaultBalanceAuditorConfig() BalanceAuditorConfig {
	return BalanceAuditorConfig{
		Interval: time.Hour,
		Repair:   true,
	}
}

// BalanceAuditor periodically looks for cached debtor balances that no
// longer match the transactions, which only happens when rows are changed
// behind the service's back.
type BalanceAuditor struct {
	balances *BalanceService
	config   BalanceAuditorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewBalanceAuditor(balances *BalanceService, config BalanceAuditorConfig) *BalanceAuditor {
	if config.Interval <= 0 {
		config.Interval = DefaultBalanceAuditorConfig().Interval
	}
	return &BalanceAuditor{balances: balances, config: config}
}

// Start begins the audit loop. Returns an error if already running.
func (a *BalanceAuditor) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("balance auditor is already running")
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.mu.Unlock()

	go a.runLoop(ctx)

	slog.InfoContext(ctx, "Balance auditor started",
		"interval", a.config.Interval,
		"repair", a.config.Repair)
	return nil
}

// Stop signals the loop and waits for the current audit to finish.
func (a *BalanceAuditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	close(a.stopCh)

	select {
	case <-a.doneCh:
		slog.InfoContext(ctx, "Balance auditor stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Balance auditor stop timed out")
		return ctx.Err()
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

func (a *BalanceAuditor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *BalanceAuditor) runLoop(ctx context.Context) {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Audit(ctx); err != nil {
				slog.ErrorContext(ctx, "Balance audit failed", "error", err)
			}
		}
	}
}

// Audit runs one comparison and, when configured, repairs what it finds.
// It returns the drifts found before repair.
func (a *BalanceAuditor) Audit(ctx context.Context) ([]BalanceDrift, error) {
	drifts, err := a.balances.Check(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		slog.WarnContext(ctx, "Debtor balance drift",
			"user_id", d.UserID,
			"cached", describeCached(d.Cached),
			"live", core.FormatAmount(d.Live.Total))
		if !a.config.Repair {
			continue
		}
		if _, err := a.balances.RecomputeUser(ctx, d.UserID); err != nil {
			return drifts, fmt.Errorf("repair balance of user %d: %w", d.UserID, err)
		}
	}
	return drifts, nil
}

func describeCached(b *core.DebtorBalance) string {
	if b == nil {
		return "none"
	}
	return core.FormatAmount(b.Balance) + " " + b.Currency.Code
}
