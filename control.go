package dullahan

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ControlServer listens on a unix socket for status/ping/quit commands,
// per spec.md §1's "unix-socket control IPC (used only for status/ping/quit
// ... queries)". It is an external collaborator named, not specified, by
// the core spec; implemented here as a thin line-protocol listener so
// `cmd/dullahan status|ping|quit` have something real to talk to.
type ControlServer struct {
	socketPath string
	logger     *slog.Logger
	listener   net.Listener

	statusFn func() string
	quitFn   func()
}

// NewControlServer creates (but does not start) a control socket listener.
func NewControlServer(socketPath string, logger *slog.Logger, statusFn func() string, quitFn func()) *ControlServer {
	return &ControlServer{socketPath: socketPath, logger: logger, statusFn: statusFn, quitFn: quitFn}
}

// Start binds the unix socket, removing a stale one first.
func (s *ControlServer) Start() error {
	_ = os.Remove(s.socketPath)
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.socketPath, err)
	}
	s.listener = l
	go s.acceptLoop()
	return nil
}

func (s *ControlServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *ControlServer) handle(conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	cmd := strings.TrimSpace(line)
	switch cmd {
	case "status":
		fmt.Fprintln(conn, s.statusFn())
	case "ping":
		fmt.Fprintln(conn, "pong")
	case "quit":
		fmt.Fprintln(conn, "ok")
		s.quitFn()
	default:
		fmt.Fprintf(conn, "unknown command: %s\n", cmd)
	}
}

// Close stops accepting and removes the socket file.
func (s *ControlServer) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	_ = os.Remove(s.socketPath)
	return err
}

// SendControlCommand dials socketPath and sends a single command, returning
// the server's one-line reply. Used by `status`/`ping`/`quit` subcommands.
func SendControlCommand(socketPath, cmd string) (string, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("control: dial %s: %w", socketPath, err)
	}
	defer conn.Close()
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
