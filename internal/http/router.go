package http

import (
	"net/http"

	"housing-backend/internal/handlers"
	"housing-backend/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(
	billingHandler *handlers.BillingHandler,
	invoiceHandler *handlers.InvoiceHandler,
	sepaHandler *handlers.SepaHandler,
	paymentHandler *handlers.PaymentHandler,
	customerHandler *handlers.CustomerHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
	cors func(http.Handler) http.Handler,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.NewAPILogging().Handler)
	if cors != nil {
		r.Use(cors)
	}

	// Probes and metrics (NO AUTHENTICATION REQUIRED)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Billing
	api.HandleFunc("/billing/run", billingHandler.Run).Methods("POST")
	api.HandleFunc("/billing/contacts/{id}", billingHandler.BillContact).Methods("POST")
	api.HandleFunc("/billing/contracts/{id}", billingHandler.BillContract).Methods("POST")

	// Invoices
	api.HandleFunc("/invoices/send-unsent", invoiceHandler.SendUnsent).Methods("POST")
	api.HandleFunc("/invoices/{id}", invoiceHandler.GetInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/pdf", invoiceHandler.GeneratePDF).Methods("POST")
	api.HandleFunc("/invoices/{id}/pdf", invoiceHandler.DownloadPDF).Methods("GET")
	api.HandleFunc("/invoices/{id}/send", invoiceHandler.Send).Methods("POST")
	api.HandleFunc("/invoices/{id}/cancel", invoiceHandler.Cancel).Methods("POST")

	// SEPA direct debit
	api.HandleFunc("/sepa/candidates", sepaHandler.Candidates).Methods("GET")
	api.HandleFunc("/sepa/export", sepaHandler.Export).Methods("POST")

	// Bank payments
	api.HandleFunc("/payments/import", paymentHandler.Import).Methods("POST")

	// Customers
	api.HandleFunc("/customers/{id}", customerHandler.GetCustomer).Methods("GET")
	api.HandleFunc("/customers/{id}/balance", customerHandler.Balance).Methods("GET")
	api.HandleFunc("/customers/{id}/mandate", customerHandler.UpdateMandate).Methods("PUT")

	return r
}
