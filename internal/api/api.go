package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jalliet/UM-GemiFish/internal/flow"
	"github.com/jalliet/UM-GemiFish/internal/genai"
	"github.com/jalliet/UM-GemiFish/internal/media"
	"github.com/jalliet/UM-GemiFish/internal/messaging"
	"github.com/jalliet/UM-GemiFish/internal/scheduler"
	"github.com/jalliet/UM-GemiFish/internal/store"
	"github.com/jalliet/UM-GemiFish/internal/twiliowhatsapp"
	"github.com/jalliet/UM-GemiFish/internal/whatsapp"
)

const (
	// DefaultAddr is the default API server listen address.
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds slow webhook requests.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds slow response writes.
	DefaultWriteTimeout = 30 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address.
	Addr string
	// UploadsDir is the root of the per-contact media namespaces.
	UploadsDir string
	// EnableWhatsApp turns on the direct-session WhatsApp channel.
	EnableWhatsApp bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithUploadsDir sets the media namespace root.
func WithUploadsDir(dir string) Option {
	return func(o *Opts) { o.UploadsDir = dir }
}

// WithWhatsAppChannel enables the direct-session WhatsApp channel alongside
// the Twilio webhook.
func WithWhatsAppChannel() Option {
	return func(o *Opts) { o.EnableWhatsApp = true }
}

// Server is the HTTP transport adapter around the conversation router.
type Server struct {
	addr      string
	router    messaging.Router
	messenger messaging.Service
	store     store.Store
	sched     *scheduler.Scheduler
	httpSrv   *http.Server
}

// NewServer wires a server from its collaborators.
func NewServer(st store.Store, router messaging.Router, messenger messaging.Service, sched *scheduler.Scheduler, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{addr: cfg.Addr, router: router, messenger: messenger, store: st, sched: sched}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/message", s.messageHandler)
	mux.HandleFunc("/send", s.sendHandler)
	mux.HandleFunc("/schedule", s.scheduleHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	slog.Info("API server listening", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Run assembles the full service from module options and serves until the
// listener stops: store, Twilio client, media pipeline, responder, router,
// messaging services, HTTP server. The direct-session WhatsApp channel is
// started only when enabled via WithWhatsAppChannel.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, twilioOpts []twiliowhatsapp.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = store.DefaultUploadsDir
	}

	storeOpts = append(storeOpts, store.WithUploadsDir(cfg.UploadsDir))
	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	twilioClient, err := twiliowhatsapp.NewClient(twilioOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Twilio client: %w", err)
	}

	ingester := media.NewIngester(twilioClient, st, cfg.UploadsDir)

	// Prefer the conversational agent; fall back to the rule-based responder
	// when no agent credentials are configured.
	var responder flow.Responder
	if agent, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Info("agent responder unavailable, using rule-based responder", "reason", err)
		responder = &flow.RuleBasedResponder{}
	} else {
		responder = flow.NewAgentResponder(agent)
	}

	router := flow.NewRouter(st, ingester, responder)
	messenger := messaging.NewTwilioService(twilioClient)
	defer messenger.Stop()

	sched := scheduler.NewScheduler()
	defer sched.Stop()

	if cfg.EnableWhatsApp {
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		waService := messaging.NewWhatsAppService(waClient, router)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := waService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start WhatsApp channel: %w", err)
		}
		defer waService.Stop()
		slog.Info("direct-session WhatsApp channel enabled")
	}

	server := NewServer(st, router, messenger, sched, apiOpts...)
	return server.Start()
}
