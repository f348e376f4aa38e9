package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/application/bootphase"
	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	appsession "github.com/skyguide-inc/skyguide/internal/application/session"
	domainnotice "github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/cache"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/config"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/device"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/email"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/notice"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/permission"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/pubsub"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/ratelimit"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/repository"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/scheduler"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/handlers"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	dbshared "github.com/skyguide-inc/skyguide/internal/shared/db"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

const (
	oauthStatePrefix = "skyguide:oauth:"
	oauthStateTTL    = 10 * time.Minute
)

// Container holds every component of the server and wires them together.
// Shutdown releases them in reverse order of start.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	// Root context for monitors and the notice bus
	ctx    context.Context
	cancel context.CancelFunc

	// Repositories and stores
	sessionRepo *repository.SessionRepository
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	sessionFeed *pubsub.RedisSessionFeed

	// Auth
	provider *auth.Provider

	// Session lifecycle
	registry  *clientstate.Registry
	phases    *bootphase.Controller
	records   *appsession.RecordService
	monitors  *appsession.MonitorManager
	recovery  *appsession.Recovery
	authState *appsession.AuthStateHandler
	unlisten  func()

	// Notices
	hub           *notice.Hub
	noticeBus     *pubsub.RedisNoticeBus
	busDone       chan struct{}
	amqpPublisher *notice.AMQPPublisher
	emailService  *email.SMTPEmailService

	// HTTP surface
	enforcer     *permission.Enforcer
	routeGuard   *middleware.RouteGuard
	loginLimiter *middleware.RateLimiter
	hdlrs        *allHandlers

	// Background maintenance
	maintenance *scheduler.MaintenanceScheduler

	shutdownOnce sync.Once
}

type allHandlers struct {
	auth    *handlers.AuthHandler
	session *handlers.SessionHandler
	notice  *handlers.NoticeHandler
}

// newEngine returns a bare engine that honours forwarding headers only from
// the given proxies. With none configured, ClientIP is the socket peer.
func newEngine(trustedProxies []string) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}
	return engine, nil
}

// NewContainer creates a Container with all dependencies wired together.
// The container owns redisClient from here on and closes it on Shutdown.
func NewContainer(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log logger.Interface) (*Container, error) {
	engine, err := newEngine(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Container{
		engine: engine,
		db:     db,
		cfg:    cfg,
		log:    log,
		redis:  redisClient,
		ctx:    ctx,
		cancel: cancel,
	}

	// Section 1: Infrastructure - repositories, client state, boot phases
	c.initInfrastructure()

	// Section 2: Notices - hub, cross-instance bus, email and AMQP fan-out
	c.initNotices()

	// Section 3: Auth - provider, OAuth, session lifecycle
	c.initAuth()

	// Section 4: HTTP - authorization, rate limiting, handlers
	if err := c.initHTTP(); err != nil {
		c.Shutdown()
		return nil, err
	}

	// Section 5: Background maintenance
	c.initMaintenance()

	return c, nil
}

func (c *Container) initInfrastructure() {
	c.sessionFeed = pubsub.NewRedisSessionFeed(c.redis, c.log)
	c.sessionRepo = repository.NewSessionRepository(c.db, c.sessionFeed, c.log)
	c.userRepo = repository.NewUserRepository(c.db, c.log)
	c.profileRepo = repository.NewProfileRepository(c.db)

	persister := cache.NewRedisClientStateStore(c.redis, c.cfg.Session.ClientStateTTL)
	c.registry = clientstate.NewRegistry(persister, c.log)
	c.phases = bootphase.NewController(c.cfg.Session.StabilizeWindow)
}

func (c *Container) initNotices() {
	instanceID := uuid.NewString()
	c.noticeBus = pubsub.NewRedisNoticeBus(c.redis, instanceID, c.log)
	c.hub = notice.NewHub(c.noticeBus, c.log)

	c.busDone = make(chan struct{})
	go func() {
		defer close(c.busDone)
		err := c.noticeBus.Run(c.ctx, func(env pubsub.NoticeEnvelope) {
			c.hub.HandleRemote(env.ClientID, env.Message)
		})
		if err != nil && c.ctx.Err() == nil {
			c.log.Errorw("notice bus stopped", "error", err)
		}
	}()

	if c.cfg.Email.Enabled {
		c.emailService = email.NewSMTPEmailService(email.SMTPConfig{
			Host:        c.cfg.Email.SMTPHost,
			Port:        c.cfg.Email.SMTPPort,
			Username:    c.cfg.Email.SMTPUser,
			Password:    c.cfg.Email.SMTPPassword,
			FromAddress: c.cfg.Email.FromAddress,
			FromName:    c.cfg.Email.FromName,
			BaseURL:     c.cfg.Server.BaseURL,
		})
		c.log.Infow("email notices enabled", "smtp_host", c.cfg.Email.SMTPHost)
	}

	if c.cfg.AMQP.Enabled {
		c.amqpPublisher = notice.NewAMQPPublisher(c.cfg.AMQP.URL, c.cfg.AMQP.Exchange, c.log)
		c.log.Infow("AMQP notices enabled", "exchange", c.cfg.AMQP.Exchange)
	}
}

// offSiteNotifiers are the channels that reach a user who is not looking at
// the page: mail and the message broker.
func (c *Container) offSiteNotifiers() []domainnotice.Notifier {
	var ns []domainnotice.Notifier
	if c.emailService != nil {
		ns = append(ns, c.emailService)
	}
	if c.amqpPublisher != nil {
		ns = append(ns, c.amqpPublisher)
	}
	return ns
}

func (c *Container) initAuth() {
	var google *auth.GoogleOAuthClient
	if c.cfg.OAuth.Google.ClientID != "" {
		google = auth.NewGoogleOAuthClient(auth.GoogleOAuthConfig{
			ClientID:     c.cfg.OAuth.Google.ClientID,
			ClientSecret: c.cfg.OAuth.Google.ClientSecret,
			RedirectURL:  c.cfg.OAuth.Google.RedirectURL,
			Scopes:       c.cfg.OAuth.Google.Scopes,
		})
	} else {
		c.log.Warnw("google OAuth not configured, OAuth sign-in disabled")
	}

	c.provider = auth.NewProvider(
		c.userRepo,
		c.profileRepo,
		dbshared.NewTransactionManager(c.db),
		auth.NewBcryptPasswordHasher(c.cfg.Auth.Password.BcryptCost),
		auth.NewJWTService(c.cfg.Auth.JWT.Secret, c.cfg.Auth.JWT.AccessExpMinutes, c.cfg.Auth.JWT.RefreshExpDays),
		google,
		cache.NewRedisStateStore(c.redis, oauthStatePrefix, oauthStateTTL),
		c.cfg.Auth.Password.MinLength,
		c.log,
	)

	var lookup device.IPLookup
	if c.cfg.IPLookup.Enabled {
		lookup = device.NewHTTPIPLookup(c.cfg.IPLookup.URL, c.cfg.IPLookup.Timeout)
	}
	collector := device.NewCollector(lookup, c.log)
	alerts := notice.NewDedupNotifier(
		notice.NewMultiNotifier(c.log, c.offSiteNotifiers()...),
		cache.NewAlertDeduplicator(c.redis),
		cache.DefaultAlertCooldown,
		c.log,
	)
	c.records = appsession.NewRecordService(c.sessionRepo, collector, c.registry, alerts, c.cfg.Session.TTL, c.log)

	// Monitors and recovery refer to each other; the factory closes over
	// c.recovery, which is set before any monitor starts.
	c.monitors = appsession.NewMonitorManager(c.ctx, func(clientID string) *appsession.Monitor {
		return appsession.NewMonitor(appsession.MonitorConfig{
			Store:    c.registry.Get(c.ctx, clientID),
			Sessions: c.records,
			Provider: c.provider,
			Feed:     c.sessionFeed,
			Recovery: c.recovery,
			Interval: c.cfg.Session.ValidateInterval,
			Logger:   c.log,
		})
	}, c.log)

	onPage := notice.NewMultiNotifier(c.log, c.hub, alerts)
	c.recovery = appsession.NewRecovery(c.registry, c.monitors, c.provider, onPage, c.hub, c.phases, c.log)

	c.authState = appsession.NewAuthStateHandler(appsession.AuthStateHandlerConfig{
		Registry:          c.registry,
		Records:           c.records,
		Profiles:          c.profileRepo,
		Provider:          c.provider,
		Monitors:          c.monitors,
		Recovery:          c.recovery,
		Notifier:          c.hub,
		Navigator:         c.hub,
		Phases:            c.phases,
		ElevatedProviders: c.cfg.OAuth.ElevatedProviders,
		Logger:            c.log,
	})
	c.unlisten = c.provider.OnAuthStateChange(c.authState.Handle)
}

func (c *Container) initHTTP() error {
	enforcer, err := permission.NewEnforcer(c.db, c.log)
	if err != nil {
		return fmt.Errorf("failed to create permission enforcer: %w", err)
	}
	if err := enforcer.SeedDefaults(); err != nil {
		return fmt.Errorf("failed to seed permission policies: %w", err)
	}
	c.enforcer = enforcer
	c.routeGuard = middleware.NewRouteGuard(c.phases, c.enforcer, c.log)

	c.loginLimiter = middleware.NewRateLimiter(
		ratelimit.NewRedisRateLimiter(c.redis),
		"auth",
		ratelimit.Rule{Limit: c.cfg.RateLimit.LoginLimit, Window: c.cfg.RateLimit.LoginWindow},
		c.log,
	)

	c.hdlrs = &allHandlers{
		auth:    handlers.NewAuthHandler(c.provider, c.records, c.profileRepo, c.cfg.Auth.Cookie, c.log),
		session: handlers.NewSessionHandler(c.records, c.log),
		notice:  handlers.NewNoticeHandler(c.hub, c.allowedOrigins(), c.log),
	}
	return nil
}

func (c *Container) initMaintenance() {
	c.maintenance = scheduler.NewMaintenanceScheduler(c.cfg.Session.SweepInterval, c.log)
	c.maintenance.Register("expired_sessions", scheduler.JobFunc(c.records.SweepExpired))
	c.maintenance.Register("idle_client_state", scheduler.JobFunc(func(context.Context) (int, error) {
		return c.registry.EvictIdle(c.cfg.Session.ClientStateTTL), nil
	}))
	c.maintenance.Register("pending_notices", scheduler.JobFunc(func(context.Context) (int, error) {
		return c.hub.PrunePending(), nil
	}))
	c.maintenance.Register("boot_phases", scheduler.JobFunc(func(context.Context) (int, error) {
		return c.phases.Prune(), nil
	}))
}

func (c *Container) allowedOrigins() []string {
	origins := append([]string{}, c.cfg.Server.AllowedOrigins...)
	if c.cfg.Server.BaseURL != "" {
		origins = append(origins, c.cfg.Server.BaseURL)
	}
	return origins
}

// Shutdown stops background work, then the monitors and sockets, then
// closes the broker and Redis connections. Safe to call more than once.
func (c *Container) Shutdown() {
	c.shutdownOnce.Do(func() {
		if c.maintenance != nil {
			c.maintenance.Stop()
		}
		if c.unlisten != nil {
			c.unlisten()
		}
		if c.monitors != nil {
			c.monitors.Shutdown()
		}
		if c.hub != nil {
			c.hub.Shutdown()
		}

		c.cancel()
		if c.busDone != nil {
			select {
			case <-c.busDone:
			case <-time.After(5 * time.Second):
				c.log.Warnw("notice bus did not stop in time")
			}
		}

		if c.amqpPublisher != nil {
			if err := c.amqpPublisher.Close(); err != nil {
				c.log.Warnw("failed to close AMQP publisher", "error", err)
			}
		}
		if c.redis != nil {
			if err := c.redis.Close(); err != nil {
				c.log.Warnw("failed to close Redis client", "error", err)
			}
		}
	})
}
