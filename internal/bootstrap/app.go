// Package bootstrap builds the runtime from config: document store, credential provider, telemetry and the
// session facade. The cmd binaries share it.
package bootstrap

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"order-desk/backend/internal/audit"
	auditrepo "order-desk/backend/internal/audit/repository"
	"order-desk/backend/internal/config"
	"order-desk/backend/internal/db"
	"order-desk/backend/internal/devnotice"
	"order-desk/backend/internal/docstore"
	identityrepo "order-desk/backend/internal/identity/repository"
	identityservice "order-desk/backend/internal/identity/service"
	inviterepo "order-desk/backend/internal/invite/repository"
	inviteservice "order-desk/backend/internal/invite/service"
	"order-desk/backend/internal/notify"
	orgrepo "order-desk/backend/internal/organization/repository"
	"order-desk/backend/internal/policy/engine"
	policyrepo "order-desk/backend/internal/policy/repository"
	"order-desk/backend/internal/security"
	sessionservice "order-desk/backend/internal/session/service"
	"order-desk/backend/internal/session/synchronizer"
	"order-desk/backend/internal/telemetry"
	telemetryotel "order-desk/backend/internal/telemetry/otel"
	userrepo "order-desk/backend/internal/user/repository"
)

// RedisKeyPrefix namespaces every key the redis document store writes.
const RedisKeyPrefix = "orderdesk:"

// App is the wired runtime of one process.
type App struct {
	Config     *config.Config
	Store      docstore.Store
	Telemetry  *telemetryotel.Providers
	Counters   *telemetry.Counters
	Invites    *inviteservice.Registry
	Authorizer *engine.OPAAuthorizer
	Facade     *sessionservice.Facade
	// Outbox is set when DEV_NOTICES is on.
	Outbox *devnotice.Outbox

	closers []func() error
}

// New opens the document store and wires every component. Callers must Close the App.
func New(ctx context.Context, cfg *config.Config, source string) (*App, error) {
	a := &App{Config: cfg}
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fail(fmt.Errorf("telemetry: %w", err))
	}
	providers.SetGlobal()
	a.Telemetry = providers
	a.closers = append(a.closers, func() error { return providers.Shutdown(context.Background()) })
	a.Counters = telemetry.NewCounters(nil)
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	if err := a.openStore(ctx); err != nil {
		return fail(err)
	}

	tokens, err := NewTokenProvider(cfg)
	if err != nil {
		return fail(err)
	}
	sender := a.newSender()
	creds := identityservice.NewLocalProvider(
		identityrepo.NewDocstoreRepository(a.Store),
		security.NewHasher(cfg.BcryptCost),
		tokens,
		sender,
		cfg.PasswordResetTTL(),
	)

	a.Invites = inviteservice.NewRegistry(inviterepo.NewDocstoreRepository(a.Store), cfg.InviteCodeTTL(), a.Counters)
	a.Authorizer = engine.NewOPAAuthorizer(policyrepo.NewDocstoreRepository(a.Store))
	a.Facade = sessionservice.New(sessionservice.Deps{
		Credentials: creds,
		Profiles:    userrepo.NewDocstoreRepository(a.Store),
		Orgs:        orgrepo.NewDocstoreRepository(a.Store),
		Invites:     a.Invites,
		SyncConfig: synchronizer.Config{
			MaxRetries:    cfg.ProfileMaxRetries,
			RetryInterval: cfg.ProfileRetryEvery(),
			WaitTimeout:   cfg.ProfileWaitCeiling(),
		},
		Authorizer: a.Authorizer,
		Audit:      audit.NewLogger(auditrepo.NewDocstoreRepository(a.Store), source),
		Emitter:    emitter,
		Counters:   a.Counters,
	})
	a.closers = append(a.closers, func() error { a.Facade.Close(); return nil })
	return a, nil
}

// openStore opens the configured document store and registers its closers.
func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.DocstoreDriver {
	case config.DriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.setStore(docstore.NewPostgresStore(conn))
		log.Printf("bootstrap: document store on postgres")
	case config.DriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		store, err := docstore.NewRedisStore(ctx, client, RedisKeyPrefix)
		if err != nil {
			return err
		}
		a.setStore(store)
		log.Printf("bootstrap: document store on redis")
	default:
		a.setStore(docstore.NewMemoryStore())
		log.Printf("bootstrap: document store in memory; data is lost on exit")
	}
	return nil
}

func (a *App) setStore(s docstore.Store) {
	a.Store = s
	a.closers = append(a.closers, s.Close)
}

func (a *App) newSender() notify.Sender {
	cfg := a.Config
	switch {
	case cfg.DevNotices:
		a.Outbox = devnotice.NewOutbox()
		return a.Outbox
	case cfg.NoticeAPIURL != "":
		return notify.NewHTTPSender(cfg.NoticeAPIKey, cfg.NoticeAPIURL, cfg.NoticeSender)
	}
	log.Printf("bootstrap: NOTICE_API_URL not set; verification and reset notices are dropped")
	return nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, sql.ErrConnDone) && !errors.Is(err, docstore.ErrClosed) {
			log.Printf("bootstrap: close: %v", err)
		}
	}
	a.closers = nil
}

// NewTokenProvider loads the JWT key pair. Without keys an ephemeral P-256 key is generated outside production,
// so id tokens do not survive a restart.
func NewTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" {
		if cfg.IsProduction() {
			return nil, errors.New("bootstrap: JWT_PRIVATE_KEY must be set when APP_ENV=production")
		}
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		log.Printf("bootstrap: JWT_PRIVATE_KEY not set; using an ephemeral signing key")
		return security.NewTokenProvider(key, key.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.IDTokenTTL()), nil
	}
	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: jwt keys: %w", err)
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.IDTokenTTL()), nil
}
