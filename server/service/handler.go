package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/health"
	"github.com/fleetdm/livequery/server/version"
	"github.com/fleetdm/livequery/server/websocket"
	"github.com/go-kit/kit/endpoint"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/igm/sockjs-go/v3/sockjs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiPrefix is the path prefix of every campaign API route.
const apiPrefix = "/api/v1/livequery"

type errorHandler struct {
	logger kitlog.Logger
}

func (h *errorHandler) Handle(ctx context.Context, err error) {
	// get the request path
	path, _ := ctx.Value(kithttp.ContextKeyRequestPath).(string)
	logger := level.Info(kitlog.With(h.logger, "path", path))

	var ewi fleet.ErrWithInternal
	if errors.As(err, &ewi) {
		logger = kitlog.With(logger, "internal", ewi.Internal())
	}

	logger.Log("err", err)
}

// MakeHandler creates an HTTP handler for the livequery server endpoints.
func MakeHandler(
	svc CampaignService,
	config config.ServerConfig,
	logger kitlog.Logger,
	checkers map[string]health.Checker,
) http.Handler {
	apiOptions := []kithttp.ServerOption{
		kithttp.ServerBefore(
			kithttp.PopulateRequestContext, // populate the request context with common fields
		),
		kithttp.ServerErrorHandler(&errorHandler{logger}),
		kithttp.ServerErrorEncoder(encodeError),
		kithttp.ServerAfter(
			kithttp.SetContentType("application/json; charset=utf-8"),
		),
	}

	prefix := strings.TrimSuffix(config.URLPrefix, "/")

	r := mux.NewRouter()
	// The stream handler must be matched before the API subrouter, whose
	// prefix it shares.
	r.PathPrefix(prefix + websocket.ResultsPath).
		Handler(makeStreamCampaignFramesHandler(prefix, svc, logger)).
		Name("stream_campaign_frames")

	attachCampaignRoutes(r.PathPrefix(prefix+apiPrefix).Subrouter(), svc, apiOptions)
	addMetrics(r)

	r.Handle(prefix+"/metrics", promhttp.Handler()).Name("metrics")
	r.Handle(prefix+"/healthz", health.Handler(logger, checkers)).Name("healthz")
	r.Handle(prefix+"/version", version.Handler()).Name("version")

	return r
}

func attachCampaignRoutes(r *mux.Router, svc fleet.CampaignService, opts []kithttp.ServerOption) {
	r.Handle("/campaigns", newServer(makeCreateCampaignEndpoint(svc), decodeCreateCampaignRequest, opts)).
		Methods("POST").Name("create_campaign")
	r.Handle("/campaigns", newServer(makeListCampaignsEndpoint(svc), decodeListCampaignsRequest, opts)).
		Methods("GET").Name("list_campaigns")
	r.Handle("/campaigns/{id:[0-9]+}", newServer(makeGetCampaignEndpoint(svc), decodeGetCampaignRequest, opts)).
		Methods("GET").Name("get_campaign")
	r.Handle("/campaigns/{id:[0-9]+}", newServer(makeDeleteCampaignEndpoint(svc), decodeDeleteCampaignRequest, opts)).
		Methods("DELETE").Name("delete_campaign")
	r.Handle("/campaigns/{id:[0-9]+}/frames", newServer(makePublishFrameEndpoint(svc), decodePublishFrameRequest, opts)).
		Methods("POST").Name("publish_frame")
}

func newServer(e endpoint.Endpoint, decodeFn kithttp.DecodeRequestFunc, opts []kithttp.ServerOption) http.Handler {
	return kithttp.NewServer(e, decodeFn, encodeResponse, opts...)
}

func makeStreamCampaignFramesHandler(prefix string, svc CampaignService, logger kitlog.Logger) http.Handler {
	logger = kitlog.With(logger, "component", "stream")

	opt := sockjs.DefaultOptions
	opt.Websocket = true
	opt.RawWebsocket = true
	return sockjs.NewHandler(prefix+websocket.ResultsPath, opt, func(session sockjs.Session) {
		conn := &websocket.Conn{Session: session}
		defer func() {
			if p := recover(); p != nil {
				level.Error(logger).Log("msg", "panic while streaming campaign frames", "err", p)
			}
			session.Close(1000, "done") //nolint:errcheck
		}()

		campaignID, err := conn.ReadSelectCampaign()
		if err != nil {
			level.Debug(logger).Log("msg", "read select_campaign", "err", err)
			conn.WriteJSONError("expected select_campaign") //nolint:errcheck
			return
		}

		svc.StreamCampaignFrames(session.Request().Context(), conn, campaignID)
	})
}

// instrumentedHandler wraps the provided handler with prometheus metrics
// middleware, labelled with the route name.
func instrumentedHandler(name string, handler http.Handler) http.Handler {
	reqCnt := registerOrExisting(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "livequery",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests made.",
			ConstLabels: prometheus.Labels{"handler": name},
		},
		[]string{"method", "code"},
	)).(*prometheus.CounterVec)

	reqDur := registerOrExisting(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "livequery",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "The HTTP request latencies in seconds.",
			ConstLabels: prometheus.Labels{"handler": name},
		},
		nil,
	)).(*prometheus.HistogramVec)

	return promhttp.InstrumentHandlerDuration(reqDur, promhttp.InstrumentHandlerCounter(reqCnt, handler))
}

func registerOrExisting(coll prometheus.Collector) prometheus.Collector {
	if err := prometheus.DefaultRegisterer.Register(coll); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return coll
}

// addMetrics decorates each named API handler with prometheus instrumentation
func addMetrics(r *mux.Router) {
	walkFn := func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		name := route.GetName()
		if name == "" || name == "stream_campaign_frames" || route.GetHandler() == nil {
			return nil
		}
		route.Handler(instrumentedHandler(name, route.GetHandler()))
		return nil
	}
	r.Walk(walkFn) //nolint:errcheck
}
