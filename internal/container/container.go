package container

import (
	"context"
	"fmt"
	"net/http"

	"go-tonesense/internal/analyzer"
	"go-tonesense/internal/capture"
	"go-tonesense/internal/client"
	"go-tonesense/internal/config"
	"go-tonesense/internal/export"
	"go-tonesense/internal/logger"
	"go-tonesense/internal/observer"
	"go-tonesense/internal/preference"
	"go-tonesense/internal/transport"
	"go-tonesense/internal/workflow"
	"go-tonesense/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	validator   *validation.UploadValidator
	client      client.AnalysisClient
	metrics     *observer.MetricsObserver
	hub         *transport.Hub
	runner      *workflow.TaskRunner
	controller  *workflow.Controller
	preferences *preference.Store
	handler     http.Handler
}

// Option adjusts the graph before it is built
type Option func(*options)

type options struct {
	device capture.Device
	client client.AnalysisClient
}

// WithDevice replaces the camera device
func WithDevice(d capture.Device) Option {
	return func(o *options) { o.device = d }
}

// WithAnalysisClient replaces the HTTP analysis client
func WithAnalysisClient(c client.AnalysisClient) Option {
	return func(o *options) { o.client = c }
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("container requires a config")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.device == nil {
		o.device = capture.NewVideoDevice(cfg.CameraUserDevice, cfg.CameraEnvironmentDevice)
	}

	analysisClient := o.client
	if analysisClient == nil {
		analysisClient = client.NewHTTPAnalysisClient(client.Options{
			BaseURL:     cfg.ServiceURL,
			Timeout:     cfg.AnalysisTimeout,
			MaxAttempts: cfg.RetryAttempts,
			Backoff:     cfg.RetryBackoff,
		})
	}

	validator := validation.NewUploadValidator()
	metrics := observer.NewMetricsObserver()
	hub := transport.NewHub()

	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)
	publisher.Subscribe(hub)

	runner := workflow.NewTaskRunner(cfg.Workers)
	controller, err := workflow.NewController(workflow.Options{
		Camera:          capture.NewSession(o.device),
		Client:          analysisClient,
		Renderer:        export.NewRenderer(),
		Validator:       validator,
		Checker:         analyzer.NewFrameChecker(),
		Publisher:       publisher,
		Runner:          runner,
		AnalysisTimeout: cfg.AnalysisTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	prefs, err := preference.Load(cfg.PreferencesPath, cfg.DarkDefault)
	if err != nil {
		controller.Close()
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	handler := transport.NewHandler(transport.Deps{
		Workflow:    controller,
		Client:      analysisClient,
		Validator:   validator,
		Preferences: prefs,
		Metrics:     metrics,
		Runner:      runner,
		Hub:         hub,
		Config:      cfg,
	})

	return &Container{
		config:      cfg,
		validator:   validator,
		client:      analysisClient,
		metrics:     metrics,
		hub:         hub,
		runner:      runner,
		controller:  controller,
		preferences: prefs,
		handler:     handler,
	}, nil
}

// Start runs the websocket hub until ctx is done
func (c *Container) Start(ctx context.Context) {
	go c.hub.Run(ctx)
}

// Close tears the workflow down and releases the camera
func (c *Container) Close() {
	c.controller.Close()
}

// CloseOnDone closes the container once ctx is cancelled
func (c *Container) CloseOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Client returns the analysis client
func (c *Container) Client() client.AnalysisClient {
	return c.client
}

// Controller returns the workflow controller
func (c *Container) Controller() *workflow.Controller {
	return c.controller
}

// Validator returns the upload validator
func (c *Container) Validator() *validation.UploadValidator {
	return c.validator
}

// Metrics returns the workflow metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}
