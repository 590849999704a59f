// Package daemon provides the process-level plumbing of a running
// barkeep instance: the Unix-socket control server, its client, the
// pidfile lock and the per-instance runtime paths.
package daemon

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var ipcJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Request is one control command sent over the socket, encoded as a
// single JSON line.
//
// Commands:
//
//	get-var    {name}            read one variable
//	set-var    {name, value}     write one variable
//	rotate-var {name, values}    cycle a variable through values
//	list-vars  {}                dump the whole namespace
//	poke       {}                force a re-evaluation pass
//	status     {}                per-command supervisor stats
type Request struct {
	Command string   `json:"command"`
	Name    string   `json:"name,omitempty"`
	Value   string   `json:"value,omitempty"`
	Values  []string `json:"values,omitempty"`
}

// Response is the single JSON line sent back for every request.
type Response struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Value  string            `json:"value,omitempty"`
	Vars   map[string]string `json:"vars,omitempty"`
}

// OK builds a success response.
func OK() Response { return Response{Status: "ok"} }

// OKValue builds a success response carrying one value.
func OKValue(v string) Response { return Response{Status: "ok", Value: v} }

// OKVars builds a success response carrying a variable dump.
func OKVars(vars map[string]string) Response { return Response{Status: "ok", Vars: vars} }

// Errorf builds an error response.
func Errorf(format string, args ...any) Response {
	return Response{Status: "error", Error: fmt.Sprintf(format, args...)}
}

// Handler dispatches control requests to the daemon subsystems.
type Handler interface {
	Handle(req Request) Response
}

// Server listens on a Unix domain socket for one-line JSON requests.
// Each connection carries exactly one request/response exchange.
type Server struct {
	socketPath string
	handler    Handler
	log        *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewServer creates a control server for socketPath.
func NewServer(socketPath string, handler Handler, log *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start begins accepting connections. Any stale socket file at the
// path is removed first; the new socket is owner-only.
func (s *Server) Start() error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for in-flight connections and
// removes the socket file. Safe to call more than once.
func (s *Server) Stop() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads one JSON request line, dispatches it and writes the
// response line. A malformed request gets an error response rather
// than a dropped connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	var req Request
	var resp Response
	if err := ipcJSON.Unmarshal(scanner.Bytes(), &req); err != nil {
		resp = Errorf("bad request: %v", err)
	} else {
		s.log.Debug("control request", "command", req.Command, "name", req.Name)
		resp = s.handler.Handle(req)
	}

	data, err := ipcJSON.Marshal(resp)
	if err != nil {
		s.log.Error("marshal control response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.log.Debug("write control response", "error", err)
	}
}
