package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rustyeddy/exchange/alert"
	"github.com/rustyeddy/exchange/command"
	"go.uber.org/zap"
)

// session drives one connection from welcome to close. It is the only
// goroutine that touches sess or writes to conn.
type session struct {
	srv    *Server
	conn   net.Conn
	sess   *command.Session
	logger *zap.Logger
	seen   uint64
	closed bool
}

// run merges two event sources into one select: lines from the reader
// goroutine and generation changes from the market store. It returns
// when the session reaches CLOSING.
func (s *session) run(ctx context.Context) {
	s.logger.Info("client connected", zap.String("remote", s.conn.RemoteAddr().String()))
	defer s.logger.Info("client disconnected")

	// Watch before the welcome so a tick during the write is not lost.
	seen, changed := s.srv.store.Watch()
	s.seen = seen

	if err := s.write(command.Welcome(s.srv.opts.InitialBalance)); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(s.conn, done)

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if s.srv.opts.IdleTimeout > 0 {
		idleTimer = time.NewTimer(s.srv.opts.IdleTimeout)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			s.close()
			return

		case in := <-lines:
			reply := command.Invalid
			if in.tooLong {
				s.logger.Warn("line too long", zap.Int("limit", MaxLineLength))
			} else {
				res := s.srv.engine.Execute(s.sess, in.text)
				if res.Quit {
					_ = s.write(res.Text)
					s.closed = true
					return
				}
				reply = res.Text
			}
			if err := s.write(reply + command.Prompt); err != nil {
				return
			}
			if idleTimer != nil {
				idleTimer.Reset(s.srv.opts.IdleTimeout)
			}

		case err := <-readErr:
			if err != nil {
				s.logger.Warn("read error", zap.Error(err))
			}
			s.close()
			return

		case <-changed:
			_, changed = s.srv.store.Watch()
			if err := s.alerts(); err != nil {
				return
			}
			if s.srv.store.Closed() {
				s.close()
				return
			}

		case <-idle:
			s.logger.Info("idle timeout")
			s.close()
			return
		}
	}
}

// alerts evaluates subscriptions once against the newest generation and
// writes any that fired as one block ending in a prompt.
func (s *session) alerts() error {
	snap := s.srv.store.Snapshot()
	if snap.Generation <= s.seen {
		return nil
	}
	s.seen = snap.Generation

	fired := s.sess.Alerts.Evaluate(snap)
	if len(fired) == 0 {
		return nil
	}
	return s.write(formatAlerts(fired))
}

func formatAlerts(fired []alert.Alert) string {
	var b strings.Builder
	for _, a := range fired {
		b.WriteString("\n")
		b.WriteString(a.String())
		b.WriteString("\n")
	}
	b.WriteString(command.Prompt)
	return b.String()
}

// close sends the closing sentinel once. Failures are ignored; the
// connection is going away either way.
func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.write(command.Closing)
}

func (s *session) write(text string) error {
	if text == "" {
		return nil
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.srv.opts.WriteTimeout)); err != nil {
		return err
	}
	if _, err := io.WriteString(s.conn, text); err != nil {
		s.logger.Debug("write failed", zap.Error(err))
		return err
	}
	return nil
}

// MaxLineLength bounds one command line, newline included. A longer line
// is discarded up to its newline and answered as an invalid command.
const MaxLineLength = 4096

type inbound struct {
	text    string
	tooLong bool
}

// readLines feeds lines from r until EOF, a read error, or done closes.
// The error channel receives nil on a clean close.
func readLines(r io.Reader, done <-chan struct{}) (<-chan inbound, <-chan error) {
	lines := make(chan inbound)
	errc := make(chan error, 1)

	go func() {
		br := bufio.NewReaderSize(r, MaxLineLength)
		for {
			in, ok, err := readLine(br)
			if ok {
				select {
				case lines <- in:
				case <-done:
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					err = nil
				}
				errc <- err
				return
			}
		}
	}()

	return lines, errc
}

// readLine returns the next line without its line ending. The bool is
// false when nothing was read before the error.
func readLine(br *bufio.Reader) (inbound, bool, error) {
	chunk, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = br.ReadSlice('\n')
		}
		return inbound{tooLong: true}, true, err
	}
	if len(chunk) == 0 {
		return inbound{}, false, err
	}

	line := strings.TrimSuffix(string(chunk), "\n")
	line = strings.TrimSuffix(line, "\r")
	return inbound{text: line}, true, err
}
