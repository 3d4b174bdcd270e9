// Package client is the interactive terminal for the trading server. It
// forwards typed lines and prints whatever the server sends, prompts
// included, without adding any of its own.
package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/exchange/command"
)

const bell = "\a"

// Banner is printed before connecting.
const Banner = "\n╔════════════════════════════════════════╗\n" +
	"║   STOCK TRADING CLIENT v3.0           ║\n" +
	"╚════════════════════════════════════════╝\n"

// QuitWait bounds how long Run waits for the closing sentinel after
// sending QUIT.
var QuitWait = 2 * time.Second

// Run relays in to conn and conn to out until the server closes the
// session, in reaches EOF, or ctx ends. EOF and cancellation both send
// QUIT first so the server can release the slot cleanly.
func Run(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	defer conn.Close()

	w := &lockedWriter{w: out}
	recvDone := make(chan error, 1)
	go func() { recvDone <- receive(conn, w) }()

	stop := make(chan struct{})
	defer close(stop)

	lines := make(chan string)
	inDone := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		inDone <- sc.Err()
	}()

	for {
		select {
		case err := <-recvDone:
			w.WriteString("\n✓ Disconnected\n")
			return err

		case line := <-lines:
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				return err
			}
			if strings.EqualFold(strings.TrimSpace(line), string(command.Quit)) {
				return finish(conn, w, recvDone)
			}

		case <-inDone:
			return quit(conn, w, recvDone)

		case <-ctx.Done():
			w.WriteString("\n\nAttempting to disconnect cleanly...\n")
			return quit(conn, w, recvDone)
		}
	}
}

func quit(conn net.Conn, w *lockedWriter, recvDone <-chan error) error {
	if _, err := io.WriteString(conn, string(command.Quit)+"\n"); err != nil {
		w.WriteString("\n✓ Disconnected\n")
		return nil
	}
	return finish(conn, w, recvDone)
}

// finish waits for the receiver to see the server close.
func finish(conn net.Conn, w *lockedWriter, recvDone <-chan error) error {
	var err error
	select {
	case err = <-recvDone:
	case <-time.After(QuitWait):
		_ = conn.Close()
		<-recvDone
	}
	w.WriteString("\n✓ Disconnected\n")
	return err
}

// receive copies server output to w until a line ends in the closing
// sentinel. Output is printed as it arrives except for a trailing piece
// that could still turn into the sentinel.
func receive(r io.Reader, w *lockedWriter) error {
	buf := make([]byte, 4096)
	var pending string

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending += string(buf[:n])
			for {
				i := strings.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i+1]
				pending = pending[i+1:]
				if strings.HasSuffix(line, command.Closing) {
					emit(w, strings.TrimSuffix(line, command.Closing))
					w.WriteString("Connection closed by server.\n")
					return nil
				}
				emit(w, line)
			}
			k := holdback(pending)
			emit(w, pending[:len(pending)-k])
			pending = pending[len(pending)-k:]
		}
		if err != nil {
			emit(w, pending)
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				w.WriteString("\nServer closed connection.\n")
				return nil
			}
			return err
		}
	}
}

// holdback reports how many trailing bytes of s could begin the sentinel.
func holdback(s string) int {
	for n := min(len(s), len(command.Closing)-1); n > 0; n-- {
		if strings.HasPrefix(command.Closing, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

func emit(w *lockedWriter, text string) {
	if text == "" {
		return
	}
	if strings.Contains(text, "ALERT") {
		w.WriteString(bell)
	}
	w.WriteString(text)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) WriteString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, s)
}
