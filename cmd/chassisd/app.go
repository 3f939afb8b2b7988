package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"resourcechassis/internal/adapters/resources"
	"resourcechassis/internal/audit"
	"resourcechassis/internal/blob"
	"resourcechassis/internal/core"
	"resourcechassis/internal/entitymodel/demo"
	"resourcechassis/internal/infra/token"
	"resourcechassis/pkg/domain"
)

// Token verification modes.
const (
	TokenModeStatic     = "static"
	TokenModeJWT        = "jwt"
	TokenModeIntrospect = "introspect"
)

// writeRoutes are the demo's scope and authority requirements. Fetching
// needs either read or create scope.
var writeRoutes = core.Routes{
	Create: core.RouteAuth{Scope: domain.RequireScopes("create", domain.ScopeAnd), Permissions: domain.PermissionRequirement{"can_create"}},
	List:   core.RouteAuth{Scope: domain.RequireScopes("read create", domain.ScopeOr)},
	Get:    core.RouteAuth{Scope: domain.RequireScopes("read create", domain.ScopeOr)},
	Update: core.RouteAuth{Scope: domain.RequireScopes("update", domain.ScopeAnd), Permissions: domain.PermissionRequirement{"can_update"}},
	Delete: core.RouteAuth{Scope: domain.RequireScopes("delete", domain.ScopeAnd), Permissions: domain.PermissionRequirement{"can_delete"}},
}

// traceOutput receives JSON pipeline spans when CHASSIS_TRACE is enabled.
var traceOutput io.Writer = os.Stderr

type app struct {
	store    core.PersistentStore
	handler  http.Handler
	archive  *audit.ArchiveNotifier
	registry *prometheus.Registry
}

func (a *app) Handler() http.Handler { return a.handler }

func (a *app) Close() error { return a.store.Close() }

func newApp(ctx context.Context, logger *zap.Logger) (*app, error) {
	reg, err := demo.Registry()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	store, err := core.OpenPersistentStore(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{store: store}
	if err := a.init(ctx, logger, reg); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, logger *zap.Logger, reg domain.DescriptorSource) error {
	gender, _ := reg.Descriptor(demo.EntityGender)
	if err := seedGenders(ctx, core.NewRecordService(gender, a.store), a.store); err != nil {
		return err
	}

	resolver, err := tokenResolver(os.Getenv("CHASSIS_TOKEN_MODE"))
	if err != nil {
		return err
	}
	gate := core.NewGate(resolver)

	archiveStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open audit archive: %w", err)
	}
	var archive domain.Notifier
	if archiveStore != nil {
		a.archive = audit.NewArchiveNotifier(archiveStore)
		archive = a.archive
		logger.Info("audit archive enabled", zap.String("driver", string(archiveStore.Driver())))
	}
	notifier := audit.NewFanout(audit.NewLogNotifier(logger), archive)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		return err
	}
	metrics := multiMetrics{prom, expvarMetrics()}

	var tracer core.Tracer
	if on, _ := strconv.ParseBool(os.Getenv("CHASSIS_TRACE")); on {
		tracer = core.NewJSONTracer(traceOutput)
		logger.Info("pipeline tracing enabled")
	}

	var pipelines []resources.Resource
	for _, spec := range []struct {
		entity domain.EntityType
		gate   *core.Gate
	}{
		{demo.EntityGender, gate},
		{demo.EntityPerson, gate},
		{demo.EntityTag, nil},
	} {
		p, err := core.NewPipeline(core.PipelineConfig{
			Entity:   spec.entity,
			Registry: reg,
			Store:    a.store,
			Gate:     spec.gate,
			Routes:   writeRoutes,
			Notifier: notifier,
			Logger:   logger,
			Metrics:  metrics,
			Tracer:   tracer,
		})
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}
	router, err := resources.NewRouter(logger, pipelines...)
	if err != nil {
		return err
	}
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	router.Handle("/debug/vars", expvar.Handler())
	a.handler = router
	return nil
}

// seedGenders inserts the demo genders that have no live row yet.
func seedGenders(ctx context.Context, svc *core.RecordService, store domain.Store) error {
	desc := svc.Descriptor()
	for _, g := range demo.Genders() {
		_, found, err := store.FindOne(ctx, desc.Entity, desc.LiveFilter().With("name", g["name"]))
		if err != nil {
			return fmt.Errorf("seed genders: %w", err)
		}
		if found {
			continue
		}
		if _, err := svc.Create(ctx, g); err != nil {
			return fmt.Errorf("seed gender %v: %w", g["name"], err)
		}
	}
	return nil
}

// tokenResolver selects the credential verifier.
//
//	CHASSIS_TOKEN_MODE: static|jwt|introspect (default static)
//	CHASSIS_JWT_SECRET: HS256 secret when mode=jwt
//	CHASSIS_INTROSPECTION_URL, CHASSIS_INTROSPECTION_CLIENT_ID, CHASSIS_INTROSPECTION_CLIENT_SECRET
func tokenResolver(mode string) (domain.TokenResolver, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", TokenModeStatic:
		return token.NewStaticResolver(token.DemoActors()), nil
	case TokenModeJWT:
		return token.NewJWTResolver([]byte(os.Getenv("CHASSIS_JWT_SECRET")))
	case TokenModeIntrospect:
		return token.NewIntrospectionResolver(
			os.Getenv("CHASSIS_INTROSPECTION_URL"),
			os.Getenv("CHASSIS_INTROSPECTION_CLIENT_ID"),
			os.Getenv("CHASSIS_INTROSPECTION_CLIENT_SECRET"),
		)
	}
	return nil, fmt.Errorf("unknown token mode %q", mode)
}

// expvarMetrics is process-wide because expvar names can be published once.
var expvarMetrics = sync.OnceValue(func() *core.ExpvarMetricsRecorder {
	return core.NewExpvarMetricsRecorder("chassis_pipeline")
})

// multiMetrics forwards observations to several recorders.
type multiMetrics []core.MetricsRecorder

func (m multiMetrics) Observe(ctx context.Context, entity domain.EntityType, op core.Operation, status int, d time.Duration) {
	for _, r := range m {
		r.Observe(ctx, entity, op, status, d)
	}
}
