package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/usecase"
	"github.com/Xausdorf/votechain/internal/utils"
)

var ErrSecretNotSet = errors.New("SESSION_SECRET is not set")

type Config struct {
	Addr      string
	JWTSecret []byte
	Location  *time.Location
	// PingInterval - keep-alive period of sockets.
	PingInterval time.Duration
}

// LoadConfig reads HTTP_ADDR, SESSION_SECRET, TIMEZONE and WS_PING_INTERVAL.
func LoadConfig() (Config, error) {
	secret := utils.Env("SESSION_SECRET", "")
	if secret == "" {
		return Config{}, ErrSecretNotSet
	}
	loc, err := time.LoadLocation(utils.Env("TIMEZONE", "Local"))
	if err != nil {
		return Config{}, err
	}
	return Config{
		Addr:         utils.Env("HTTP_ADDR", ":8080"),
		JWTSecret:    []byte(secret),
		Location:     loc,
		PingInterval: utils.EnvDuration("WS_PING_INTERVAL", 30*time.Second),
	}, nil
}

type Server struct {
	cfg    Config
	orch   *usecase.Orchestrator
	auth   *Authenticator
	logger *zap.Logger
	http   *http.Server
}

func NewServer(cfg Config, orch *usecase.Orchestrator, logger *zap.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		auth:   NewAuthenticator(cfg.JWTSecret),
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           WithCORS(s.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Auth() *Authenticator {
	return s.auth
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)

	r.HandleFunc("/votings", s.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/votings", s.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc("/votings/mine", s.HandleMine).Methods(http.MethodGet)
	r.HandleFunc("/votings/{id}", s.HandleShow).Methods(http.MethodGet)
	r.HandleFunc("/votings/{id}/vote", s.HandleVote).Methods(http.MethodPost)
	r.HandleFunc("/votings/{id}/finalize", s.HandleFinalize).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.HandleWebSocket).Methods(http.MethodGet)
	return r
}

// WithCORS opens the API to any origin. Identity travels in the Authorization header, never in cookies.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks until the server stops. A clean Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
