package health

import (
	"context"
	"fmt"
)

// Pinger is the subset of the ledger client used for health checks.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// LedgerChecker implements health checking for the notarization ledger.
// A nil client means the ledger is not configured; the check reports that
// instead of failing, since sealing works without notarization.
type LedgerChecker struct {
	client Pinger
}

// NewLedgerChecker creates a new ledger health checker.
func NewLedgerChecker(client Pinger) *LedgerChecker {
	return &LedgerChecker{client: client}
}

// HealthCheck verifies the ledger RPC endpoint responds and serves the
// expected chain.
func (l *LedgerChecker) HealthCheck(ctx context.Context) error {
	if l.client == nil {
		return fmt.Errorf("ledger not configured")
	}
	return l.client.HealthCheck(ctx)
}
