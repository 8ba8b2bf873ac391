// Package server assembles the plugin core into a running node: the event
// bus, the session hub, the cluster table, the plugin manager and the admin
// endpoint, all driven by one configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/regioncore/internal/cluster"
	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/config"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/network"
	"github.com/dshills/regioncore/internal/plugin"
	"github.com/dshills/regioncore/internal/plugin/lua"
)

// participantName is the name the server registers with the event bus.
const participantName = "server"

// Errors returned by the server.
var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("server is already running")
)

// Server is one region node.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	setLevel   func(slog.Level)
	tracer     trace.TracerProvider
	registry   *prometheus.Registry
	sampleLoad cluster.SampleFunc

	bus     *event.Bus
	hub     *network.Hub
	cluster *cluster.Static
	manager *plugin.Manager

	id      event.PluginID
	running chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLevelSetter is called with the new level when a reloaded
// configuration changes log.level.
func WithLevelSetter(fn func(slog.Level)) Option {
	return func(s *Server) {
		s.setLevel = fn
	}
}

// WithConfigPath enables reloading the configuration from path while running.
func WithConfigPath(path string) Option {
	return func(s *Server) {
		s.configPath = path
	}
}

// WithTracerProvider sets the provider plugin lifecycle spans go to.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracer = tp
	}
}

// WithRegistry sets the metrics registry. By default each server gets its own.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithLoadSampler replaces the CPU load sampler.
func WithLoadSampler(fn cluster.SampleFunc) Option {
	return func(s *Server) {
		s.sampleLoad = fn
	}
}

// New builds a server from cfg. The server joins the bus as a system
// participant owning the server::* events before any plugin is added, so
// plugins can subscribe to them.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
		running:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("node", cfg.Server.NodeID)

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	local := cluster.Node{
		ID:      cfg.Server.NodeID,
		Region:  cfg.Region.Region(),
		Address: cfg.Server.Address,
	}
	peers := make([]cluster.Node, 0, len(cfg.Cluster.Peers))
	for _, p := range cfg.Cluster.Peers {
		peers = append(peers, p.Node())
	}
	table, err := cluster.NewStatic(local, peers...)
	if err != nil {
		return nil, fmt.Errorf("building cluster table: %w", err)
	}
	s.cluster = table

	s.bus = event.NewBus(
		event.WithCapacity(cfg.Events.Capacity),
		event.WithLogger(s.logger),
		event.WithMetrics(s.registry),
	)
	s.hub = network.NewHub(network.WithLogger(s.logger))

	managerOpts := []plugin.Option{
		plugin.WithLogger(s.logger),
		plugin.WithMetrics(s.registry),
		plugin.WithPumpPoolSize(cfg.Plugins.PumpPoolSize),
		plugin.WithCallbackTimeout(cfg.Plugins.CallbackTimeout.Std()),
	}
	if s.tracer != nil {
		managerOpts = append(managerOpts, plugin.WithTracerProvider(s.tracer))
	}
	s.manager, err = plugin.NewManager(s.bus, s.hub, s.cluster, managerOpts...)
	if err != nil {
		return nil, err
	}

	if err := s.join(); err != nil {
		return nil, err
	}
	return s, nil
}

// join registers the server as an event producer.
func (s *Server) join() error {
	s.id = event.NewPluginID()
	if err := s.bus.AddPlugin(s.id, participantName); err != nil {
		return err
	}
	for _, id := range []event.EventID{MessageEvent, ConnectedEvent, DisconnectedEvent} {
		if _, err := s.bus.Register(s.id, id); err != nil {
			return fmt.Errorf("registering %s: %w", id, err)
		}
	}
	return nil
}

// Bus returns the event bus.
func (s *Server) Bus() *event.Bus { return s.bus }

// Hub returns the session hub transports attach to.
func (s *Server) Hub() *network.Hub { return s.hub }

// Cluster returns the cluster table.
func (s *Server) Cluster() *cluster.Static { return s.cluster }

// Manager returns the plugin manager.
func (s *Server) Manager() *plugin.Manager { return s.manager }

// Registry returns the metrics registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// ID returns the server's participant id on the bus.
func (s *Server) ID() event.PluginID { return s.id }

// AddPlugin registers a plugin with the manager.
func (s *Server) AddPlugin(ctx context.Context, p plugin.Plugin) (event.PluginID, error) {
	return s.manager.Register(ctx, p)
}

// LoadScripts loads the plugin scripts found in dir (single "name.lua"
// files and "name/init.lua" directories) in name order. A script that fails
// to load or register is logged and skipped.
func (s *Server) LoadScripts(ctx context.Context, dir string) (int, error) {
	loader := lua.NewLoader(lua.WithPaths(dir))
	scripts, failed, err := loader.Load(ctx,
		lua.WithLogger(s.logger),
		lua.WithExecutionTimeout(s.cfg.Plugins.ScriptTimeout.Std()),
	)
	if err != nil {
		return 0, err
	}
	for _, c := range failed {
		s.logger.Error("script load failed", "path", c.Path, "error", c.Err)
	}

	loaded := 0
	for _, script := range scripts {
		if _, err := s.manager.Register(ctx, script); err != nil {
			_ = script.Close()
			s.logger.Error("script register failed", "plugin", script.Name(), "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Connect opens a session and announces it on server::connected.
func (s *Server) Connect(player network.PlayerID, remote string) *network.Session {
	sess := s.hub.Connect(player, remote)
	s.publish(ConnectedEvent, Connection{
		Conn:   sess.ID(),
		Player: sess.Player(),
		Remote: sess.Remote(),
		At:     sess.ConnectedAt(),
	})
	return sess
}

// Disconnect closes a session and announces it on server::disconnected.
func (s *Server) Disconnect(conn network.ConnectionID) error {
	sess, ok := s.hub.Lookup(conn)
	if !ok {
		return &network.TransportError{Op: "disconnect", Conn: conn, Err: network.ErrUnknownConnection}
	}
	if err := s.hub.Disconnect(conn); err != nil {
		return err
	}
	s.publish(DisconnectedEvent, Connection{
		Conn:   conn,
		Player: sess.Player(),
		Remote: sess.Remote(),
		At:     time.Now(),
	})
	return nil
}

// HandleInbound decodes one client envelope and emits it on server::message.
func (s *Server) HandleInbound(conn network.ConnectionID, data []byte, format codec.Format) error {
	player, ok := s.hub.Player(conn)
	if !ok {
		return &network.TransportError{Op: "receive", Conn: conn, Err: network.ErrUnknownConnection}
	}
	if err := s.hub.RecordInbound(conn, len(data)); err != nil {
		return err
	}

	name, payload, err := codec.DecodeEnvelope(data, format)
	if err != nil {
		return &network.TransportError{Op: "receive", Conn: conn, Err: err}
	}

	return s.bus.Emit(event.New(MessageEvent, s.id, Inbound{
		Conn:    conn,
		Player:  player,
		Event:   name,
		Format:  format,
		Payload: payload,
	}))
}

func (s *Server) publish(id event.EventID, data Connection) {
	if err := s.bus.Emit(event.New(id, s.id, data)); err != nil {
		s.logger.Warn("server event dropped", "event", id.String(), "error", err)
	}
}

// Run starts the plugins and runs the tick loop, the load sampler, the admin
// endpoint and the configuration watcher until ctx is cancelled or one of
// them fails. Plugins are stopped before Run returns.
func (s *Server) Run(ctx context.Context) error {
	select {
	case s.running <- struct{}{}:
	default:
		return ErrAlreadyRunning
	}

	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("starting plugins: %w", err)
	}
	s.logger.Info("server started",
		"region", s.cfg.Region.Region().String(),
		"plugins", s.manager.Count(),
		"active", s.manager.CountActive(),
		"tick_rate", s.cfg.Server.TickRate,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.manager.Run(gctx, s.cfg.Server.TickInterval())
	})

	samplerOpts := []cluster.SamplerOption{cluster.WithSamplerLogger(s.logger)}
	if s.sampleLoad != nil {
		samplerOpts = append(samplerOpts, cluster.WithSampleFunc(s.sampleLoad))
	}
	sampler := cluster.NewLoadSampler(s.cluster, s.cfg.Cluster.SampleInterval.Std(), samplerOpts...)
	g.Go(func() error {
		return sampler.Run(gctx)
	})

	if s.cfg.Admin.Enabled {
		admin := newAdmin(s)
		g.Go(func() error {
			return admin.Run(gctx, s.cfg.Admin.Address, s.cfg.Server.ShutdownTimeout.Std())
		})
	}

	if s.configPath != "" {
		w, err := config.NewWatcher(s.configPath, s.cfg, config.WithWatcherLogger(s.logger))
		if err != nil {
			s.logger.Warn("config watcher disabled", "error", err)
		} else {
			w.OnChange(s.applyConfig)
			g.Go(func() error {
				return w.Run(gctx)
			})
		}
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if cerr := s.manager.Close(closeCtx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.bus.RemovePlugin(s.id)

	s.logger.Info("server stopped", "ticks", s.manager.Ticks(), "crashed", len(s.manager.Crashes()))
	return err
}

// applyConfig applies the fields that can change while running. Everything
// else is logged and takes effect on restart.
func (s *Server) applyConfig(next *config.Config) {
	if s.setLevel != nil {
		if level, err := next.Log.SlogLevel(); err == nil {
			s.setLevel(level)
		}
	}
	if next.Server.TickRate != s.cfg.Server.TickRate {
		s.logger.Warn("tick rate change takes effect on restart",
			"current", s.cfg.Server.TickRate, "configured", next.Server.TickRate)
	}
	if next.Region != s.cfg.Region {
		s.logger.Warn("region change ignored; a node serves one region for its lifetime",
			"current", s.cfg.Region.Region().String(), "configured", next.Region.Region().String())
	}
}
