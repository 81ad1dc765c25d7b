package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acorn-io/acorn-names/pkg/backend"
	"github.com/acorn-io/acorn-names/pkg/metrics"
	"github.com/acorn-io/acorn-names/pkg/version"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type apiServer struct {
	ctx     context.Context
	log     *logrus.Entry
	port    int
	metrics *metrics.Metrics
	now     func() time.Time
	replays *replayGuard
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, port int, m *metrics.Metrics) (*apiServer, error) {
	replays, err := newReplayGuard(replayCacheSize)
	if err != nil {
		return nil, err
	}
	return &apiServer{
		ctx:     ctx,
		log:     log,
		port:    port,
		metrics: m,
		now:     time.Now,
		replays: replays,
	}, nil
}

// Router builds the HTTP routes over backend.
func (a *apiServer) Router(backend backend.Backend) http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(a.log, a.metrics))
	h := newHandler(backend)

	// When functioning properly, these routes will return the version of tha app that is running
	router.Path("/").HandlerFunc(h.root)
	router.Path("/healthz").HandlerFunc(h.root)
	if a.metrics != nil {
		router.Path("/metrics").Handler(promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
	}

	api := router.PathPrefix("/v1").Subrouter()

	// Reads are public.
	api.Path("/names/{name}").Methods("GET").HandlerFunc(h.getName)
	api.Path("/prices/{label}").Methods("GET").HandlerFunc(h.getPrice)
	api.Path("/auctions/{label}").Methods("GET").HandlerFunc(h.getAuction)
	api.Path("/events").Methods("GET").HandlerFunc(h.listEvents)
	api.Path("/expiring").Methods("GET").HandlerFunc(h.listExpiring)
	api.Path("/owners/{address}/names").Methods("GET").HandlerFunc(h.listOwnerNames)
	api.Path("/owners/{address}/operators/{operator}").Methods("GET").HandlerFunc(h.getOperator)
	api.Path("/tokens/{id}").Methods("GET").HandlerFunc(h.getToken)
	api.Path("/registry").Methods("GET").HandlerFunc(h.getRegistry)

	// Every write is signed by the caller it acts for.
	signed := api.NewRoute().Methods("POST").Subrouter()
	signed.Use(signatureAuthMiddleware(a.now, a.replays))

	signed.Path("/names").HandlerFunc(h.buy)
	signed.Path("/register").HandlerFunc(h.register)
	signed.Path("/names/{name}/renew").HandlerFunc(h.renew)
	signed.Path("/names/{name}/transfer").HandlerFunc(h.transfer)
	signed.Path("/names/{name}/record-store").HandlerFunc(h.setRecordStore)
	signed.Path("/names/{name}/approve").HandlerFunc(h.approve)
	signed.Path("/operators").HandlerFunc(h.setOperator)
	signed.Path("/transfers/permit").HandlerFunc(h.transferWithPermit)

	signed.Path("/auctions").HandlerFunc(h.startAuction)
	signed.Path("/auctions/{label}/commit").HandlerFunc(h.commit)
	signed.Path("/auctions/{label}/reveal").HandlerFunc(h.reveal)
	signed.Path("/auctions/{label}/finalize").HandlerFunc(h.finalize)

	signed.Path("/admin/pause").HandlerFunc(h.pause)
	signed.Path("/admin/unpause").HandlerFunc(h.unpause)
	signed.Path("/admin/withdraw").HandlerFunc(h.withdraw)
	signed.Path("/admin/pricing").HandlerFunc(h.setPricing)
	signed.Path("/admin/capabilities").HandlerFunc(h.setCapability)

	// Note: this allows not found urls to be logged via the middleware
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	return ghandlers.CORS(
		ghandlers.AllowedHeaders([]string{"Content-Type", HeaderAddress, HeaderTimestamp, HeaderNonce, HeaderSignature}),
	)(router)
}

func (a *apiServer) Start(backend backend.Backend) error {
	logrus.Infof("Version: %s", version.Get())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Router(backend),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.log.WithField("port", a.port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}
