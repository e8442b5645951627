package management

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	connectTimeout = 1 * time.Second
	// Slightly longer overall timeout to accommodate the auth roundtrip
	// plus the command itself.
	readWriteTimeout = 8 * time.Second
	authTimeout      = 3 * time.Second
)

type Client struct {
	socketPath string
	password   string
}

func NewClient(app string, password string) *Client {
	return &Client{
		socketPath: GetDefaultSocketPath(app),
		password:   password,
	}
}

// IsServerStarted pings the daemon socket.
func (c *Client) IsServerStarted() bool {
	res, err := c.SendCommand("ping")
	if err != nil {
		return false
	}
	return res == pongString
}

// recvMessage reads lines until the end marker.
func recvMessage(reader *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.TrimRight(line, "\n") == endMarker {
			return strings.TrimRight(b.String(), "\n"), nil
		}
		b.WriteString(line)
	}
}

// SendCommand sends one command line to the daemon and returns its response.
func (c *Client) SendCommand(command string) (string, error) {
	if command == "" {
		command = "help"
	}

	conn, err := net.DialTimeout("unix", c.socketPath, connectTimeout)
	if err != nil {
		return "", fmt.Errorf("error connecting to daemon socket %s: %v\nIs the daemon running?", c.socketPath, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if c.password != "" {
		if err := conn.SetWriteDeadline(time.Now().Add(authTimeout)); err != nil {
			return "", fmt.Errorf("error setting write deadline for auth: %v", err)
		}
		if _, err = fmt.Fprintf(conn, "%s\n", c.password); err != nil {
			return "", fmt.Errorf("error sending password: %v", err)
		}
	}

	deadline := time.Now().Add(readWriteTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("error setting read/write deadline: %v", err)
	}

	if _, err = fmt.Fprintf(conn, "%s\n", command); err != nil {
		return "", fmt.Errorf("error sending command: %v", err)
	}

	response, err := recvMessage(reader)
	if err != nil {
		return "", fmt.Errorf("error reading response: %v", err)
	}
	if strings.Contains(response, nokAuthString) {
		return "", fmt.Errorf("auth failure: %s", strings.TrimSpace(response))
	}

	return strings.TrimSpace(response), nil
}
