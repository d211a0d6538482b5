// Package server assembles one co-editing session and exposes it over
// HTTP: the websocket endpoint, a health probe, and optionally the
// static browser client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nbcopilot/internal/agent"
	"nbcopilot/internal/config"
	"nbcopilot/internal/embedding"
	"nbcopilot/internal/hub"
	"nbcopilot/internal/llm"
	"nbcopilot/internal/notebook"
	"nbcopilot/internal/prompt"
	"nbcopilot/internal/search"
	"nbcopilot/internal/tools"
	"nbcopilot/internal/watcher"
)

// portProbeLimit bounds how far above the configured port the
// listener probes when the port is taken.
const portProbeLimit = 10

// Server is one wired session plus its HTTP surface.
type Server struct {
	cfg    config.Config
	logger *zap.Logger

	hub     *hub.Hub
	store   *notebook.Store
	index   *search.Index
	agent   *agent.Agent
	watcher *watcher.Watcher
}

// New wires a session from config.
func New(cfg config.Config, logger *zap.Logger) (*Server, error) {
	prompts, err := prompt.Load(cfg.PromptFile)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewGeminiClient(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	h := hub.New(nil, logger)
	store := notebook.NewStore(h, logger, notebook.WithAutoApply(cfg.AutoApply))
	h.Bind(store)

	index := search.NewIndex(engine, cfg.IndexWorkers, logger)
	h.OnDocumentReplaced = func(doc notebook.Document) {
		// Reindexing embeds every cell over the network; do not hold
		// up the websocket read loop for it.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := index.Reindex(ctx, doc); err != nil {
				logger.Warn("reindex failed", zap.Error(err))
			}
		}()
	}

	registry := tools.NewRegistry(logger)
	tools.RegisterNotebookTools(registry, store)
	tools.RegisterSearchTools(registry, index)

	opts := []agent.Option{agent.WithPlanner(cfg.Planner)}
	if cfg.MaxRounds > 0 {
		opts = append(opts, agent.WithMaxRounds(cfg.MaxRounds))
	}
	ag := agent.New(client, registry, h, store, prompts, logger, opts...)

	s := &Server{
		cfg:    cfg,
		logger: logger.Named("server"),
		hub:    h,
		store:  store,
		index:  index,
		agent:  ag,
	}

	if cfg.NotebookPath != "" {
		w := watcher.New(cfg.NotebookPath, store, h, logger)
		w.OnReload = h.OnDocumentReplaced
		s.watcher = w
	}
	return s, nil
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.LoadOnce(); err != nil {
			return fmt.Errorf("loading notebook: %w", err)
		}
	}

	ln, addr, err := s.listen()
	if err != nil {
		return err
	}
	s.logger.Info("listening", zap.String("addr", addr))

	httpServer := &http.Server{Handler: s.routes()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.inputLoop(gctx)
	})
	if s.watcher != nil {
		g.Go(func() error {
			err := s.watcher.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// inputLoop is the single consumer of the user input queue: prompts
// are handled strictly one at a time.
func (s *Server) inputLoop(ctx context.Context) error {
	for {
		input, err := s.hub.NextInput(ctx)
		if err != nil {
			return err
		}
		// Run reports its own failures to subscribers.
		_ = s.agent.Run(ctx, input)
	}
}

// listen binds the configured port, probing upward when it is taken.
func (s *Server) listen() (net.Listener, string, error) {
	var lastErr error
	for port := s.cfg.Port; port < s.cfg.Port+portProbeLimit; port++ {
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, port)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if port != s.cfg.Port {
				s.logger.Warn("configured port taken, moved up", zap.Int("configured", s.cfg.Port), zap.Int("bound", port))
			}
			return ln, addr, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("no free port in %d..%d: %w", s.cfg.Port, s.cfg.Port+portProbeLimit-1, lastErr)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return mux
}

// handleHealth never touches session state, so a wedged dispatch loop
// does not make the probe hang.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser client is served from arbitrary local ports during
	// development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	s.hub.ServeConn(r.Context(), conn)
}
