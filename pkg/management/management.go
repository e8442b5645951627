// Package management exposes a running netctrl daemon over a Unix socket
// with a line-based command protocol, so `netctrl ctl <cmd>` can drive a
// controller started elsewhere. Responses are terminated by a lone "." line.
package management

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"netctrl-go/pkg/appdir"
	"netctrl-go/pkg/log"
)

const (
	defaultSocketDir = "/run/netctrl-go"

	// endMarker terminates every server response.
	endMarker     = "."
	pongString    = "OK: pong"
	nokAuthString = "NOK: auth"
)

var (
	socketDirOnce sync.Once
	socketDirPath string
)

// socketDir prefers /run but falls back to the app dir when /run is not
// writable (unprivileged test runs, non-Linux systems).
func socketDir() string {
	socketDirOnce.Do(func() {
		if err := os.MkdirAll(defaultSocketDir, 0755); err == nil {
			socketDirPath = defaultSocketDir
			return
		}
		socketDirPath = appdir.AppDir()
	})
	return socketDirPath
}

func GetDefaultSocketPath(app string) string {
	return path.Join(socketDir(), app+".sock")
}

// CommandHandler handles one command line; it returns the response text.
type CommandHandler func(args []string) (string, error)

// CommandInfo holds a handler and its help description.
type CommandInfo struct {
	Handler     CommandHandler
	Description string
}

// Server listens on the Unix socket and dispatches registered commands.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]CommandInfo
	mu         sync.RWMutex // protects handlers
	quit       chan struct{}
	wg         sync.WaitGroup
	startTime  time.Time
	password   string
}

// NewServer creates a management server for the given app name. A non-empty
// password is required as the first line of every client connection.
func NewServer(app string, password string) *Server {
	s := &Server{
		socketPath: GetDefaultSocketPath(app),
		handlers:   make(map[string]CommandInfo),
		quit:       make(chan struct{}),
		startTime:  time.Now(),
		password:   password,
	}
	s.RegisterHandler("ping", "Check if the daemon's management interface is responsive", s.handlePingCommand)
	s.RegisterHandler("uptime", "Show daemon uptime", s.handleUptimeCommand)
	s.RegisterHandler("logs", "Get the current run's log entries", s.handleLogsCommand)
	s.RegisterHandler("help", "Show help for commands. Usage: help [command]", s.handleHelpCommand)
	s.RegisterHandler("list", "Alias for 'help'", s.handleHelpCommand)
	return s
}

// RegisterHandler adds a command handler along with its description.
func (s *Server) RegisterHandler(command, description string, handler CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lowerCommand := strings.ToLower(command)
	if _, exists := s.handlers[lowerCommand]; exists {
		log.Printf("mgmt: overwriting handler for command %s", lowerCommand)
	}
	s.handlers[lowerCommand] = CommandInfo{
		Handler:     handler,
		Description: description,
	}
}

// Start listening on the Unix socket.
func (s *Server) Start() error {
	s.quit = make(chan struct{})

	// A stale socket file from a dead run would make Listen fail.
	if _, err := os.Stat(s.socketPath); err == nil {
		if err := os.Remove(s.socketPath); err != nil {
			log.Printf("mgmt: failed to remove existing socket file: %v", err)
		}
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	s.listener = listener
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		log.Printf("mgmt: could not set socket permissions: %v", err)
	}

	log.Printf("mgmt: management server listening on %s", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop gracefully shuts down the management server.
func (s *Server) Stop() {
	close(s.quit)

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	if _, err := os.Stat(s.socketPath); err == nil {
		if err := os.Remove(s.socketPath); err != nil {
			log.Printf("mgmt: error removing socket file %s: %v", s.socketPath, err)
		}
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		default:
			if unixListener, ok := s.listener.(*net.UnixListener); ok {
				_ = unixListener.SetDeadline(time.Now().Add(1 * time.Second))
			}

			conn, err := s.listener.Accept()
			if err != nil {
				if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
					continue // deadline tick, check quit again
				}
				select {
				case <-s.quit:
					return
				default:
					log.Printf("mgmt: error accepting connection: %v", err)
					time.Sleep(100 * time.Millisecond)
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}
}

// sendResponse writes the response followed by the end marker.
func sendResponse(writer *bufio.Writer, response string) error {
	if _, err := writer.WriteString(strings.TrimRight(response, "\n") + "\n" + endMarker + "\n"); err != nil {
		return err
	}
	return writer.Flush()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	if s.password != "" {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		clientPass, err := reader.ReadString('\n')
		if err != nil {
			sendResponse(writer, nokAuthString)
			return
		}
		conn.SetReadDeadline(time.Time{})

		if strings.TrimSpace(clientPass) != s.password {
			log.Printf("mgmt: authentication failed")
			sendResponse(writer, nokAuthString)
			// Slow down brute-force attempts a little.
			time.Sleep(2000 * time.Millisecond)
			return
		}
	}

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		cmdLine, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				sendResponse(writer, "error: read timeout")
			}
			return
		}
		conn.SetReadDeadline(time.Time{})

		cmdLine = strings.TrimSpace(cmdLine)
		if cmdLine == "" {
			continue
		}
		if cmdLine == "quit" {
			sendResponse(writer, "OK: Bye!")
			return
		}

		parts := strings.Fields(cmdLine)
		command := strings.ToLower(parts[0])
		args := parts[1:]

		s.mu.RLock()
		cmdInfo, ok := s.handlers[command]
		s.mu.RUnlock()

		var response string
		if ok {
			var handlerErr error
			response, handlerErr = cmdInfo.Handler(args)
			if handlerErr != nil {
				response = fmt.Sprintf("error: %s: %v", command, handlerErr)
				log.Printf("mgmt: handler error for command '%s': %v", command, handlerErr)
			}
		} else {
			response = fmt.Sprintf("error: unknown command '%s'. Try 'help'.", command)
		}

		if err := sendResponse(writer, response); err != nil {
			log.Printf("mgmt: error writing response: %v", err)
			return
		}
	}
}

// --- Default command handlers ---

func (s *Server) handlePingCommand(args []string) (string, error) {
	return pongString, nil
}

func (s *Server) handleUptimeCommand(args []string) (string, error) {
	uptime := time.Since(s.startTime).Round(time.Second)
	return fmt.Sprintf("OK: daemon running, uptime %s", uptime), nil
}

func (s *Server) handleLogsCommand(args []string) (string, error) {
	entries, err := log.GetLogsSinceStart()
	if err != nil {
		return "", err
	}
	var response strings.Builder
	for _, entry := range entries {
		response.WriteString(entry.LogData)
	}
	return strings.TrimRight(response.String(), "\n"), nil
}

// handleHelpCommand lists commands with descriptions or shows help for a
// specific command.
func (s *Server) handleHelpCommand(args []string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var response strings.Builder

	if len(args) > 0 {
		cmdName := strings.ToLower(args[0])
		cmdInfo, ok := s.handlers[cmdName]
		if !ok {
			response.WriteString(fmt.Sprintf("error: unknown command '%s'. Try 'help' for a list.", cmdName))
		} else {
			response.WriteString(fmt.Sprintf("OK: Help for '%s':\n", cmdName))
			response.WriteString(fmt.Sprintf("  Usage: %s [args...]\n", cmdName))
			response.WriteString(fmt.Sprintf("  Description: %s", cmdInfo.Description))
		}
		return strings.TrimRight(response.String(), "\n"), nil
	}

	response.WriteString("OK: Available commands:\n")

	cmds := make([]string, 0, len(s.handlers))
	for cmd := range s.handlers {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)

	maxLen := 0
	for _, cmd := range cmds {
		if len(cmd) > maxLen {
			maxLen = len(cmd)
		}
	}

	for _, cmd := range cmds {
		cmdInfo := s.handlers[cmd]
		padding := strings.Repeat(" ", maxLen-len(cmd)+2)
		response.WriteString(fmt.Sprintf("  %s%s%s\n", cmd, padding, cmdInfo.Description))
	}
	response.WriteString("\nUse 'help <command>' for more details on a specific command.")

	return strings.TrimRight(response.String(), "\n"), nil
}
