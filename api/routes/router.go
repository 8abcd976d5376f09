package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cinevault/cinevault-backend/api/controllers"
	webhookcontrollers "github.com/cinevault/cinevault-backend/api/controllers/webhooks"
	"github.com/cinevault/cinevault-backend/api/middleware"
	cartsvc "github.com/cinevault/cinevault-backend/internal/cart"
	moviesvc "github.com/cinevault/cinevault-backend/internal/movies"
	ordersvc "github.com/cinevault/cinevault-backend/internal/orders"
	paymentsvc "github.com/cinevault/cinevault-backend/internal/payments"
	stripewebhook "github.com/cinevault/cinevault-backend/internal/webhooks/stripe"
	"github.com/cinevault/cinevault-backend/pkg/config"
	"github.com/cinevault/cinevault-backend/pkg/db"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	"github.com/cinevault/cinevault-backend/pkg/redis"
	"github.com/cinevault/cinevault-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	verifier middleware.TokenVerifier,
	movieService moviesvc.Service,
	cartService cartsvc.Service,
	orderService ordersvc.Service,
	paymentService paymentsvc.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))

		r.Route("/movies", func(r chi.Router) {
			r.Get("/", controllers.MoviesList(movieService, logg))
			r.Get("/{movieID}", controllers.MovieGet(movieService, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
			r.Post("/items", controllers.CartAddItem(cartService, logg))
			r.Delete("/items/{movieID}", controllers.CartRemoveItem(cartService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderCreate(orderService, logg))
			r.Get("/", controllers.OrdersListMine(orderService, logg))
			r.Get("/{orderID}", controllers.OrderGet(orderService, logg))
			r.Post("/{orderID}/cancel", controllers.OrderCancel(orderService, logg))
			r.Post("/{orderID}/payments", controllers.PaymentInitiate(paymentService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", controllers.PaymentsListMine(paymentService, logg))
			r.Get("/{paymentID}", controllers.PaymentGet(paymentService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))

		r.With(middleware.RequireCapability(middleware.CapViewAllOrders, logg)).
			Get("/orders", controllers.AdminOrdersList(orderService, logg))
		r.With(middleware.RequireCapability(middleware.CapViewAllPayments, logg)).
			Get("/payments", controllers.AdminPaymentsList(paymentService, logg))
		r.With(middleware.RequireCapability(middleware.CapRefundPayments, logg)).
			Post("/payments/{paymentID}/refund", controllers.AdminPaymentRefund(paymentService, logg))
	})

	return r
}
