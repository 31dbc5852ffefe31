package broker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// RunAdminConsole reads newline-delimited commands from r until it reads
// "shutdown" (triggering a graceful Shutdown) or r is closed. Any other
// line yields ErrInvalidCommand without stopping the broker.
func (b *Broker) RunAdminConsole(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "shutdown":
			b.log.Info("admin shutdown requested")
			return b.Shutdown(ctx)
		case "":
			continue
		default:
			b.log.Warn("invalid admin command", slog.String("command", line))
			return fmt.Errorf("%w: %q", ErrInvalidCommand, line)
		}
	}
	return scanner.Err()
}
