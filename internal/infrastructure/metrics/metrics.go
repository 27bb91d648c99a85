package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MaxAccountLabels bounds the distinct values of the account label.
// Accounts seen after the cap are reported as OtherAccount.
const (
	MaxAccountLabels = 100
	OtherAccount     = "_other"
)

var (
	labelMu       sync.Mutex
	accountLabels = make(map[string]struct{})
)

// AccountLabel returns accountID while fewer than MaxAccountLabels accounts have been labeled,
// then OtherAccount for any new id.
func AccountLabel(accountID string) string {
	labelMu.Lock()
	defer labelMu.Unlock()
	if _, ok := accountLabels[accountID]; ok {
		return accountID
	}
	if len(accountLabels) >= MaxAccountLabels {
		return OtherAccount
	}
	accountLabels[accountID] = struct{}{}
	return accountID
}

var (
	StakesComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stake_computed_total",
			Help: "Stakes handed out per account",
		},
		[]string{"account"},
	)

	ResultsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stake_results_processed_total",
			Help: "Settled outcomes applied per account",
		},
		[]string{"account", "outcome"},
	)

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stake_persistence_failures_total",
			Help: "Snapshot store operations that failed or timed out",
		},
		[]string{"op"},
	)

	CurrentLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stake_current_level",
			Help: "Current leveling tier per account",
		},
		[]string{"account"},
	)

	HttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)

// Register adds all collectors to reg. Use prometheus.DefaultRegisterer in main and a
// fresh registry in tests.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		StakesComputed, ResultsProcessed, PersistenceFailures, CurrentLevel, HttpRequests,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
