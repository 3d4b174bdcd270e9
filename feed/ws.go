package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/exchange/market"
	"go.uber.org/zap"
)

// Frame is one full market snapshot as sent to ticker clients.
type Frame struct {
	Generation  uint64  `json:"generation"`
	Instruments []Quote `json:"instruments"`
}

func NewFrame(snap market.Snapshot, at time.Time) Frame {
	f := Frame{
		Generation:  snap.Generation,
		Instruments: make([]Quote, 0, len(snap.Instruments)),
	}
	for _, in := range snap.Instruments {
		f.Instruments = append(f.Instruments, NewQuote(in, snap.Generation, at))
	}
	return f
}

// WSServer streams the market over WebSocket. Each client gets one frame
// on connect and one per generation it observes after that; a client
// that falls behind skips straight to the newest generation.
type WSServer struct {
	addr         string
	store        *market.Store
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewWSServer(addr string, store *market.Store, logger *zap.Logger) *WSServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSServer{
		addr:   addr,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
}

// Handler serves GET /ws (stream) and GET /market (one JSON frame).
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveStream)
	mux.HandleFunc("GET /market", s.serveMarket)
	return mux
}

// Run serves on the configured address until ctx ends.
func (s *WSServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("market feed listening", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends every stream and waits for them to finish.
func (s *WSServer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *WSServer) serveMarket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(NewFrame(s.store.Snapshot(), time.Now())); err != nil {
		s.logger.Warn("market encode", zap.Error(err))
	}
}

func (s *WSServer) serveStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	// The client never sends anything we use; reading notices when it goes.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.stream(conn, gone)
}

func (s *WSServer) stream(conn *websocket.Conn, gone <-chan struct{}) {
	var seen uint64
	first := true

	for {
		gen, changed := s.store.Watch()
		if first || gen > seen {
			snap := s.store.Snapshot()
			if err := s.send(conn, NewFrame(snap, time.Now())); err != nil {
				return
			}
			seen = snap.Generation
			first = false
			continue
		}
		if s.store.Closed() {
			s.goodbye(conn)
			return
		}

		select {
		case <-changed:
		case <-gone:
			return
		case <-s.done:
			s.goodbye(conn)
			return
		}
	}
}

func (s *WSServer) send(conn *websocket.Conn, f Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

func (s *WSServer) goodbye(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "market closed")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
