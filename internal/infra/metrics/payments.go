package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentsDuplicateTotal,
		bonusAppliedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Ledger entries reaching a terminal status, by provider and status.",
		},
		[]string{"provider", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total monetary value of succeeded payments in minor units, by currency.",
		},
		[]string{"currency"},
	)

	paymentsDuplicateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_duplicate_total",
			Help: "Provider notifications acknowledged as duplicates of settled ledger entries.",
		},
		[]string{"provider"},
	)

	bonusAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_applied_total",
			Help: "Bonus-chain steps by kind (promo/referral) and result (applied/failed).",
		},
		[]string{"kind", "result"},
	)
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncDuplicate(provider string) {
	paymentsDuplicateTotal.WithLabelValues(norm(provider)).Inc()
}

func IncBonus(kind string, applied bool) {
	result := "applied"
	if !applied {
		result = "failed"
	}
	bonusAppliedTotal.WithLabelValues(norm(kind), result).Inc()
}
