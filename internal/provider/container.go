package provider

import (
	"net/http"
	"time"

	"github.com/paypro-bridge/internal/cache"
	"github.com/paypro-bridge/internal/config"
	"github.com/paypro-bridge/internal/logger"
	"github.com/paypro-bridge/internal/models"
	"github.com/paypro-bridge/internal/payment/paypro"
	"github.com/paypro-bridge/internal/queue"
	"github.com/paypro-bridge/internal/repository"
	"github.com/paypro-bridge/internal/service"
)

// Container wires the process-wide collaborators once at startup.
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Locker      cache.Locker

	// Repositories
	DocumentStore repository.DocumentStore
	MappingRepo   repository.MappingRepository

	// Gateway
	PayProClient *paypro.Client

	// Services
	EmailSender           service.EmailSender
	ReceiptRenderer       service.ReceiptRenderer
	NotificationService   *service.NotificationService
	ReconciliationService *service.ReconciliationService
}

// NewContainer builds the container from config. Redis and the queue are optional.
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Locker: cache.NewLocker(
			time.Duration(cfg.Lock.TTLSeconds)*time.Second,
			time.Duration(cfg.Lock.WaitSeconds)*time.Second,
		),
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	c.DocumentStore = repository.NewDocumentStore(models.DB)
	c.MappingRepo = repository.NewMappingRepository(
		c.DocumentStore,
		c.Config.Store.OrdersCollection,
		c.Config.Store.PaymentsCollection,
	)
}

func (c *Container) initServices() {
	gatewayCfg := PayProConfig(c.Config.PayPro)
	if err := paypro.ValidateConfig(gatewayCfg); err != nil {
		logger.Warnw("provider_paypro_config_incomplete", "error", err)
	}
	c.PayProClient = paypro.NewClient(gatewayCfg, &http.Client{})

	c.EmailSender = service.NewSMTPEmailSender(&c.Config.Email)
	c.ReceiptRenderer = service.NewHTMLReceiptRenderer(c.Config.Email.Brand, c.Config.Email.Subject)
	c.NotificationService = service.NewNotificationService(
		c.MappingRepo,
		c.Locker,
		c.EmailSender,
		c.ReceiptRenderer,
		c.QueueClient,
	)
	c.ReconciliationService = service.NewReconciliationService(service.ReconciliationOptions{
		Gateway:     c.PayProClient,
		Mappings:    c.MappingRepo,
		Locker:      c.Locker,
		Receipts:    c.NotificationService,
		Credentials: service.NewCallbackCredentials(c.Config.Callback),
	})
}

// PayProConfig maps the config section onto the gateway client settings.
func PayProConfig(cfg config.PayProConfig) paypro.Config {
	return paypro.Config{
		BaseURL:         cfg.BaseURL,
		AuthPath:        cfg.AuthPath,
		CreateOrderPath: cfg.CreateOrderPath,
		StatusPath:      cfg.StatusPath,
		MerchantID:      cfg.MerchantID,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		Username:        cfg.Username,
		OrderType:       cfg.OrderType,
		DueDays:         cfg.DueDays,
		ExpireSeconds:   cfg.ExpireSeconds,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}
