package trigger

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Send dials the daemon socket, sends one token, and returns the reply line.
// The deadline derives from ctx when set, with a fallback so a hung daemon
// cannot block the caller forever.
func Send(ctx context.Context, socketPath, token string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("trigger: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintln(conn, token); err != nil {
		return "", fmt.Errorf("trigger: send token: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return "", fmt.Errorf("trigger: read reply: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}
