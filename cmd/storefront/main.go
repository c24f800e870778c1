package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffersonhds/storefront/internal/account"
	"github.com/jeffersonhds/storefront/internal/cart"
	"github.com/jeffersonhds/storefront/internal/catalog"
	"github.com/jeffersonhds/storefront/internal/checkout"
	"github.com/jeffersonhds/storefront/internal/config"
	h "github.com/jeffersonhds/storefront/internal/http"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/jeffersonhds/storefront/internal/logger"
	"github.com/jeffersonhds/storefront/internal/orders"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open infrastructure")
	}
	defer in.Close(log)

	api := remote.NewHTTPClient(remote.HTTPConfig{
		BaseURL:            cfg.APIBaseURL,
		Timeout:            cfg.RetryTimeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}, log)
	authAPI := remote.NewAuthClient(cfg.AuthBaseURL, cfg.AuthAPIKey, cfg.RetryTimeout)

	policy := retry.Policy{MaxAttempts: cfg.RetryAttempts, Timeout: cfg.RetryTimeout, Backoff: cfg.RetryBackoff}
	light := retry.Policy{MaxAttempts: cfg.RetryAttempts, Timeout: cfg.RetryLightTimeout, Backoff: cfg.RetryBackoff}

	session := identity.NewSession(log)
	cache := catalog.NewCache(api, in.store, log)
	carts := cart.NewManager(in.store, log)
	defer carts.Close()
	pager := orders.NewPager(in.orders, log)
	profiles := account.NewProfiles(in.users, log)
	favorites := account.NewRegistry(in.users, log)
	authSvc := identity.NewAuthService(authAPI, in.users, session, log, identity.WithPolicies(policy, light))

	var publisher checkout.Publisher = checkout.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := checkout.NewKafkaPublisher(cfg.KafkaBrokers...)
		defer kp.Close()
		publisher = kp

		poller := cart.NewPoller(carts, cfg.DeviceID, log, cfg.KafkaBrokers...)
		defer poller.Close()
		go poller.Run(ctx)
		log.WithField("brokers", cfg.KafkaBrokers).Info("checkout events enabled")
	}
	checkoutSvc := checkout.NewService(api, pager, profiles, session, log,
		checkout.WithPolicy(light), checkout.WithPublisher(publisher))

	session.OnSignOut(carts.Reset)
	session.OnSignOut(cache.Clear)
	session.OnSignOut(favorites.Reset)

	// the retrying calls may take every attempt plus the backoff between them
	retryBudget := time.Duration(cfg.RetryAttempts)*(cfg.RetryTimeout+cfg.RetryBackoff) + cfg.RequestTimeout

	routerCfg := h.RouterConfig{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		AllowedOrigins:     cfg.AllowedOrigins,
	}
	if in.verifier != nil {
		routerCfg.Verifier = in.verifier
	}
	handler := h.NewRouter(routerCfg, h.Handlers{
		Catalog:  h.NewCatalogHandler(cache, cfg.RequestTimeout, log),
		Cart:     h.NewCartHandler(carts, cache, session, cfg.RequestTimeout, log),
		Orders:   h.NewOrdersHandler(pager, session, cfg.RequestTimeout, log),
		Account:  h.NewAccountHandler(favorites, profiles, session, cfg.RequestTimeout, log),
		Checkout: h.NewCheckoutHandler(checkoutSvc, carts, session, retryBudget, log),
		Auth:     h.NewAuthHandler(authSvc, session, retryBudget, log),
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: retryBudget + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("storefront gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server error")
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		os.Exit(1)
	}

	log.Info("server exited")
}
