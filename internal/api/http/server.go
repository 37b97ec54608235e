package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/application/bridge"
	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/session"
	"github.com/tokengate/tokengate/internal/infrastructure/consensus"
	"github.com/tokengate/tokengate/internal/infrastructure/mainthread"
	"github.com/tokengate/tokengate/internal/infrastructure/sse"
	"github.com/tokengate/tokengate/internal/infrastructure/world"
)

// Bridge is the event dispatcher behind the session endpoints.
type Bridge interface {
	Dispatch(ctx context.Context, e session.Event) error
	GivePrize(ctx context.Context, sender, target identity.Identity) bool
	Status() bridge.Status
}

// RaftAdmin exposes fleet claim ledger membership.
type RaftAdmin interface {
	ID() string
	RaftAddr() string
	State() string
	IsLeader() bool
	LeaderAddr() string
	LeaderNodeID() string
	Snapshot() consensus.Snapshot
	AddVoter(ctx context.Context, nodeID, raftAddr string) error
	RemoveServer(ctx context.Context, nodeID string) error
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Bridge         Bridge
	Loop           *mainthread.Loop
	World          *world.World
	Hub            *sse.Hub
	Raft           RaftAdmin
	AdminTokenHash string
	RequestTimeout time.Duration
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	bridge         Bridge
	loop           *mainthread.Loop
	world          *world.World
	hub            *sse.Hub
	raft           RaftAdmin
	adminTokenHash string
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func NewServer(deps Deps, logger zerolog.Logger) *Server {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		bridge:         deps.Bridge,
		loop:           deps.Loop,
		world:          deps.World,
		hub:            deps.Hub,
		raft:           deps.Raft,
		adminTokenHash: deps.AdminTokenHash,
		requestTimeout: timeout,
		logger:         logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		// Streams stay open, so they are outside the request timeout.
		r.Get("/session/stream", s.streamSession)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Get("/status", s.status)

			r.Route("/session", func(r chi.Router) {
				r.Post("/join", s.joinSession)
				r.Post("/leave", s.leaveSession)
				r.Post("/chat", s.chatSession)
				r.Post("/interact", s.interactSession)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/prize-gold", s.givePrizeGold)
				if s.raft != nil {
					r.Get("/raft/status", s.raftStatus)
					r.Post("/raft/join", s.raftJoin)
					r.Post("/raft/remove", s.raftRemove)
				}
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	var (
		online            []identity.Identity
		shutdownScheduled bool
	)
	err := s.loop.Call(r.Context(), func() error {
		online = s.world.Participants()
		shutdownScheduled = s.world.ShutdownScheduled()
		return nil
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	st := s.bridge.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"claimState":        st.ClaimState,
		"processedMessages": st.ProcessedMessages,
		"vips":              st.VIPs,
		"online":            online,
		"shutdownScheduled": shutdownScheduled,
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
