package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dmchat/internal/middleware"
	"dmchat/internal/storage"
	"dmchat/pkg/logger"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Options struct {
	Mode        string
	JWTSecret   string
	TokenExpiry time.Duration
	// Uploads defaults to an in-memory store served under /uploads.
	Uploads storage.Store
	Logger  *logger.Logger
}

// Server is an in-memory stand-in for the chat backend.
type Server struct {
	engine *gin.Engine
	store  *Store
	auth   *Auth
	hub    *Hub
	logger *logger.Logger
}

func New(opts Options) *Server {
	switch opts.Mode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "devserver"
	}
	if opts.TokenExpiry <= 0 {
		opts.TokenExpiry = time.Hour
	}
	if opts.Uploads == nil {
		opts.Uploads = storage.NewMemoryStore("/uploads")
	}

	l := opts.Logger.Named("devserver")
	s := &Server{
		engine: gin.New(),
		store:  NewStore(),
		auth:   NewAuth(opts.JWTSecret, opts.TokenExpiry),
		hub:    NewHub(l),
		logger: l,
	}
	s.setupRoutes(&handlers{
		store:   s.store,
		auth:    s.auth,
		hub:     s.hub,
		uploads: opts.Uploads,
		log:     l,
		now:     time.Now,
	})
	return s
}

func (s *Server) setupRoutes(h *handlers) {
	s.engine.Use(gin.Recovery())
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	s.engine.POST("/register", h.register)
	s.engine.POST("/login", h.login)
	s.engine.GET("/uploads/:name", h.upload)
	s.engine.GET("/ws/chat/:chatId", h.liveChannel)

	authed := s.engine.Group("/", middleware.AuthMiddleware(s.auth))
	{
		authed.GET("/me", h.me)
		authed.GET("/chats", h.listChats)
		authed.POST("/chats", h.createChat)
		authed.GET("/messages", h.listMessages)
		authed.POST("/messages", h.sendMessage)
		authed.PATCH("/messages/:id", h.editMessage)
		authed.DELETE("/messages/:id", h.deleteMessage)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Auth() *Auth {
	return s.auth
}

// Start runs the hub until ctx ends.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.Start(ctx)
	httpServer := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the devserver on %s...", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("Shutting down the devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the devserver: %s", err)
		return err
	}
	return nil
}
