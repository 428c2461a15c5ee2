// Package legacy sends commands straight to the vehicle's local web server.
// Responses are informational only and never feed the status store.
package legacy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/kilianp07/rcpanel/core/command"
	coremon "github.com/kilianp07/rcpanel/core/monitoring"
	"github.com/kilianp07/rcpanel/infra/logger"
)

const maxBody = 4 << 10

// Client issues GET <base>/<token> requests.
type Client struct {
	base   string
	client *http.Client
	log    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewClient creates a client for the configured device.
func NewClient(cfg Config) *Client {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		base:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client: &http.Client{Timeout: cfg.timeout()},
		log:    logger.New("legacy-http"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send issues the command and returns the device's text response.
func (c *Client) Send(ctx context.Context, cmd command.Command) (string, error) {
	if !cmd.Valid() {
		return "", command.ErrUnknownCommand
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+cmd.Token(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("device returned %s", resp.Status)
	}
	return string(body), nil
}

// Mirror sends the command in the background and logs the outcome.
func (c *Client) Mirror(cmd command.Command) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		defer coremon.Recover()
		text, err := c.Send(c.ctx, cmd)
		if err != nil {
			c.log.Warnf("legacy %s: %v", cmd.Token(), err)
			return
		}
		c.log.Debugf("legacy %s: %s", cmd.Token(), text)
	}()
}

// Close cancels in-flight mirrors and waits for them. Mirrors issued after
// Close are dropped.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}
