// Package server accepts trading connections and runs one session loop
// per admitted client.
//
// Sessions share nothing but the market store. Each session owns its
// portfolio and subscriptions outright; the registry is the only table
// touched by both admission and teardown, and a session releases its
// slot as its final act.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rustyeddy/exchange/command"
	"github.com/rustyeddy/exchange/config"
	"github.com/rustyeddy/exchange/market"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running component supervised alongside admission,
// such as the price simulator or a market feed.
type Service interface {
	Run(ctx context.Context) error
}

type Options struct {
	Addr             string
	MaxSessions      int
	AcceptPoll       time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	InitialBalance   float64
	DefaultThreshold float64
}

// OptionsFrom extracts the server options from a loaded config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Addr:             cfg.Server.Addr,
		MaxSessions:      cfg.Server.MaxSessions,
		AcceptPoll:       cfg.Server.AcceptPoll,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		InitialBalance:   cfg.Account.InitialBalance,
		DefaultThreshold: cfg.Account.DefaultThreshold,
	}
}

type Server struct {
	opts     Options
	store    *market.Store
	engine   *command.Engine
	registry *Registry
	logger   *zap.Logger
	services []Service

	sessions sync.WaitGroup
}

func New(opts Options, store *market.Store, engine *command.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:     opts,
		store:    store,
		engine:   engine,
		registry: NewRegistry(opts.MaxSessions),
		logger:   logger,
	}
}

// AddService registers svc to run for the lifetime of Run.
func (s *Server) AddService(svc Service) {
	s.services = append(s.services, svc)
}

func (s *Server) Registry() *Registry { return s.registry }

// Run listens on the configured address and supervises admission and
// every registered service until ctx ends or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range s.services {
		svc := svc
		g.Go(func() error { return svc.Run(gctx) })
	}
	g.Go(func() error { return s.Serve(gctx, ln) })

	return g.Wait()
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Serve admits connections from ln until ctx ends, then closes ln and
// waits for every session to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.sessions.Wait()
	defer ln.Close()

	dl, canPoll := ln.(deadliner)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if canPoll {
			if err := dl.SetDeadline(time.Now().Add(s.opts.AcceptPoll)); err != nil {
				return fmt.Errorf("accept deadline: %w", err)
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", zap.Error(err))
			return fmt.Errorf("accept: %w", err)
		}

		s.admit(ctx, conn)
	}
}

// admit hands conn to a new session loop, or refuses it when full.
func (s *Server) admit(ctx context.Context, conn net.Conn) {
	id, err := s.registry.Acquire()
	if err != nil {
		s.logger.Warn("connection rejected: server full", zap.String("remote", conn.RemoteAddr().String()))
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		_, _ = io.WriteString(conn, command.Full)
		_ = conn.Close()
		return
	}

	sess := command.NewSession(id, s.store, s.opts.InitialBalance, s.opts.DefaultThreshold)
	loop := &session{
		srv:    s,
		conn:   conn,
		sess:   sess,
		logger: s.logger.With(zap.String("user", sess.Username), zap.Int("session", id)),
	}

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer s.registry.Release(id)
		defer conn.Close()
		loop.run(ctx)
	}()
}
