package service

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const (
	DashboardScope    = "dashboard"
	TransactionsScope = "transactions"

	accountScopePrefix = "account/"
)

// AccountScope names the cached view of a single account.
func AccountScope(accountID string) string {
	return accountScopePrefix + accountID
}

var invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_cache_invalidations_total",
	Help: "Cached views invalidated after committed ledger mutations",
}, []string{"scope"})

// Invalidator is told which of an owner's cached views are stale. It is called
// only after the unit has committed.
type Invalidator interface {
	Invalidate(ctx context.Context, ownerID string, scopes ...string)
}

type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, string, ...string) {}

// LogInvalidator records invalidations in the log and in metrics for
// downstream caches to pick up.
type LogInvalidator struct {
	Log zerolog.Logger
}

func (l LogInvalidator) Invalidate(ctx context.Context, ownerID string, scopes ...string) {
	for _, scope := range scopes {
		label := scope
		if strings.HasPrefix(scope, accountScopePrefix) {
			label = "account"
		}
		invalidationsTotal.WithLabelValues(label).Inc()
	}
	l.Log.Debug().Str("owner_id", ownerID).Strs("scopes", scopes).Msg("cache invalidated")
}
