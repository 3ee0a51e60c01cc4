package dump1090

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"skyroute/internal/models"
)

// SBSClient streams BaseStation (SBS-1) messages from dump1090's port 30003 output
type SBSClient struct {
	conn         net.Conn
	reader       *bufio.Reader
	addr         string
	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration
}

func NewSBSClient(addr string) *SBSClient {
	return &SBSClient{
		addr:         addr,
		maxRetries:   -1, // -1 means infinite retries
		retryBackoff: 1 * time.Second,
		maxBackoff:   30 * time.Second,
	}
}

// connect establishes a TCP connection to dump1090
func (c *SBSClient) connect(ctx context.Context) error {
	dialer := net.Dialer{
		Timeout: 5 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// StreamMessages reads messages until ctx is cancelled, reconnecting with exponential
// backoff whenever the connection drops
func (c *SBSClient) StreamMessages(ctx context.Context, messageChan chan<- *models.SBSMessage) error {
	retryCount := 0
	backoff := c.retryBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.conn == nil {
			if err := c.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				retryCount++
				if c.maxRetries > 0 && retryCount > c.maxRetries {
					return fmt.Errorf("max retries (%d) exceeded", c.maxRetries)
				}
				slog.Warn("Failed to connect to SBS feed", "addr", c.addr, "retry", retryCount, "error", err)

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
				// 1s, 2s, 4s, 8s, ... capped at maxBackoff
				backoff *= 2
				if backoff > c.maxBackoff {
					backoff = c.maxBackoff
				}
				continue
			}
			retryCount = 0
			backoff = c.retryBackoff
			slog.Info("Connected to SBS feed", "addr", c.addr)
		}

		err := c.readMessages(ctx, messageChan)
		if err != nil && ctx.Err() == nil {
			slog.Warn("SBS connection error, reconnecting", "error", err)
			c.closeConnection()
			continue
		}

		return ctx.Err()
	}
}

func (c *SBSClient) readMessages(ctx context.Context, messageChan chan<- *models.SBSMessage) error {
	var pending strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		chunk, err := c.reader.ReadString('\n')
		pending.WriteString(chunk)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // keep the partial line and wait for the rest
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("connection closed")
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		line := strings.TrimSpace(pending.String())
		pending.Reset()
		if line == "" {
			continue
		}

		msg, err := models.ParseSBSMessage(line)
		if err != nil {
			slog.Debug("Failed to parse SBS message", "error", err)
			continue
		}

		select {
		case messageChan <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// closeConnection closes the current connection
func (c *SBSClient) closeConnection() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Close closes the connection
func (c *SBSClient) Close() error {
	c.closeConnection()
	return nil
}
