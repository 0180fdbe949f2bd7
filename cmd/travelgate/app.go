package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/travelgate/approval"
	"github.com/yairfalse/travelgate/exception"
	"github.com/yairfalse/travelgate/internal/config"
	"github.com/yairfalse/travelgate/notify"
	"github.com/yairfalse/travelgate/policy"
	"github.com/yairfalse/travelgate/snapshot"
	"github.com/yairfalse/travelgate/storage"
	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/types"
	"github.com/yairfalse/travelgate/wal"
)

// Registry ids of the active rulesets
const (
	liteRuleset      = "policy_lite"
	validatorRuleset = "validator"
)

// app holds the components built from one config
type app struct {
	cfg       *config.Config
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	backend   storage.Backend
	store     *snapshot.Store
	lite      *policy.Registry[types.TripContext]
	validator *policy.Registry[types.TripPlan]
	expense   *policy.ExpenseEngine
	recorder  *approval.Recorder
	journal   *wal.WAL
	router    *exception.Router
	aws       *aws.Config
	closers   []func() error
}

type appOption func(*app)

// withTelemetry instruments components with provider-backed metrics
func withTelemetry(metrics *telemetry.Metrics, tracer trace.Tracer) appOption {
	return func(a *app) {
		a.metrics = metrics
		a.tracer = tracer
	}
}

// newApp wires every component. The approval override is read from the
// environment once here and handed to the expense engine.
func newApp(ctx context.Context, cfg *config.Config, opts ...appOption) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: telemetry.NoopMetrics(),
		tracer:  otel.Tracer("github.com/yairfalse/travelgate"),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.loadRulesets(ctx); err != nil {
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openRouter(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) loadRulesets(ctx context.Context) error {
	lite, err := loadRuleset(policy.LiteCatalog, a.cfg.Rulesets.PolicyLite, policy.DefaultLiteRuleset)
	if err != nil {
		return fmt.Errorf("load policy-lite rules: %w", err)
	}
	a.lite = policy.NewRegistry[types.TripContext]()
	a.lite.Instrument(a.metrics)
	a.lite.Put(ctx, liteRuleset, lite)

	validator, err := loadRuleset(policy.ValidatorCatalog, a.cfg.Rulesets.Validator, policy.DefaultValidatorRuleset)
	if err != nil {
		return fmt.Errorf("load validator rules: %w", err)
	}
	a.validator = policy.NewRegistry[types.TripPlan]()
	a.validator.Instrument(a.metrics)
	a.validator.Put(ctx, validatorRuleset, validator)

	a.expense, err = policy.NewExpenseEngine(a.cfg.Rulesets.Approval, a.cfg.ApprovalOverride())
	if err != nil {
		return fmt.Errorf("load expense approval rules: %w", err)
	}
	return nil
}

func loadRuleset[S any](catalog *policy.Catalog[S], path string, fallback func() (*policy.Ruleset[S], error)) (*policy.Ruleset[S], error) {
	if path == "" {
		return fallback()
	}
	return policy.LoadFile(catalog, path)
}

func (a *app) openStore(ctx context.Context) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	a.backend = backend
	if closer, ok := backend.(storage.Lifecycle); ok {
		a.closers = append(a.closers, closer.Close)
	}

	a.store = snapshot.NewStore(backend, snapshot.WithMetrics(a.metrics), snapshot.WithTracer(a.tracer))
	a.recorder = approval.NewRecorder(a.store, a.validator, validatorRuleset)
	return nil
}

func (a *app) openBackend(ctx context.Context) (storage.Backend, error) {
	sc := a.cfg.Snapshots
	switch sc.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendBolt:
		return storage.NewBoltStore(sc.Path)
	case config.BackendS3:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(s3.NewFromConfig(awsCfg), sc.Bucket, sc.Prefix), nil
	case config.BackendDynamoDB:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), sc.Table), nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", sc.Backend)
}

// awsConfig loads the shared AWS config once per process
func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.cfg.AWS.Region)}
	if a.cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(a.cfg.AWS.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	a.aws = &awsCfg
	return awsCfg, nil
}

// journalConfig maps the exception settings onto journal rotation
func journalConfig(ec config.ExceptionsConfig) wal.Config {
	walConfig := wal.DefaultConfig()
	if ec.JournalMaxFileSize > 0 {
		walConfig.MaxFileSize = ec.JournalMaxFileSize
	}
	if ec.JournalRetentionDays > 0 {
		walConfig.RetentionDays = ec.JournalRetentionDays
	}
	return walConfig
}

func (a *app) openRouter(ctx context.Context) error {
	ec := a.cfg.Exceptions
	walConfig := journalConfig(ec)

	journal, err := wal.OpenWithConfig(ec.JournalDir, walConfig)
	if err != nil {
		return fmt.Errorf("open exception journal: %w", err)
	}
	a.journal = journal
	a.closers = append(a.closers, journal.Close)

	notifier, err := a.notifier(ctx)
	if err != nil {
		return err
	}

	a.router = exception.NewRouter(
		exception.NewStaticAuthorizer(a.cfg.Approvers),
		exception.WithJournal(journal),
		exception.WithNotifier(notifier),
		exception.WithDecisionHook(approval.ExceptionHook(a.store, a.lite, liteRuleset)),
		exception.WithMetrics(a.metrics),
		exception.WithTracer(a.tracer),
	)
	if _, err := a.router.Recover(ec.JournalDir, walConfig); err != nil {
		return err
	}
	return nil
}

func (a *app) notifier(ctx context.Context) (exception.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(telemetry.NewLogger("escalations"))}
	if url := a.cfg.Notify.SQSQueueURL; url != "" {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notify.NewSQSNotifier(sqs.NewFromConfig(awsCfg), url))
	}
	return notifiers, nil
}

// Close releases the journal and the storage backend
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
