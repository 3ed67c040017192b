// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "housing_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "housing_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BillingInvoicesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housing_billing_invoices_total",
		Help: "Invoices created by billing runs",
	})

	BillingItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housing_billing_items_total",
		Help: "Invoice items created by billing runs",
	})

	BillingPackagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housing_billing_packages_skipped_total",
		Help: "Contract packages skipped because their next billing date is stale",
	})

	BillingCustomerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housing_billing_customer_errors_total",
		Help: "Customers whose billing transaction failed",
	})

	SepaBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housing_sepa_batches_total",
		Help: "Exported SEPA direct debit batches",
	})

	SepaPaymentsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housing_sepa_payments_exported_total",
		Help: "Invoices exported into SEPA batches",
	})

	PaymentImportOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "housing_payment_import_transactions_total",
			Help: "Bank transactions processed by payment import, by outcome",
		},
		[]string{"outcome"},
	)

	InvoicesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "housing_invoices_sent_total",
			Help: "Invoice mails by result",
		},
		[]string{"result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "housing_job_duration_seconds",
			Help:    "Duration of batch jobs",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"type"},
	)
)
