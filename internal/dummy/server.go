// Package dummy serves a local stand-in for the users API, answering
// 429 once its token bucket runs dry.
package dummy

import (
	"bytes"
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/gonetx/checkit/internal/logger"
)

const usersPrefix = "/api/users/"

type Config struct {
	Addr  string
	Rate  float64
	Burst int
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type user struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

type Server struct {
	cfg     Config
	limiter *rate.Limiter
	srv     *fasthttp.Server
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	s.srv = &fasthttp.Server{
		Handler: s.Handler,
		Name:    "checkit-dummy",
	}
	return s
}

func (s *Server) ListenAndServe() error {
	logger.Logger.Infow("dummy server listening", "addr", s.cfg.Addr, "rate", s.cfg.Rate, "burst", s.cfg.Burst)
	return s.srv.ListenAndServe(s.cfg.Addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

// Handler answers GET /api/users/{id}. The rate limit is applied before
// authentication, so an unauthenticated burst still sees 429s.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if !ctx.IsGet() || !strings.HasPrefix(path, usersPrefix) {
		writeJSON(ctx, fasthttp.StatusNotFound, response{Status: "fail", Message: "Not found"})
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		writeJSON(ctx, fasthttp.StatusTooManyRequests, response{Status: "error", Message: "Too many requests"})
		return
	}

	auth := ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)
	if len(auth) == 0 {
		writeJSON(ctx, fasthttp.StatusUnauthorized, response{Status: "fail", Message: "Authorization header is required"})
		return
	}
	if parts := bytes.Split(auth, []byte(" ")); len(parts) != 2 || string(parts[0]) != "Bearer" {
		writeJSON(ctx, fasthttp.StatusUnauthorized, response{Status: "fail", Message: "Invalid token format"})
		return
	}

	id, err := strconv.Atoi(strings.TrimPrefix(path, usersPrefix))
	if err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, response{Status: "fail", Message: "Invalid user ID, must be an integer"})
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, response{
		Status:  "success",
		Message: "User retrieved successfully",
		Data: user{
			ID:       id,
			Username: "user" + strconv.Itoa(id),
			Email:    "user" + strconv.Itoa(id) + "@example.com",
			FullName: "User " + strconv.Itoa(id),
		},
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, code int, body response) {
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		logger.Logger.Errorw("failed to write response", "error", err)
	}
}
