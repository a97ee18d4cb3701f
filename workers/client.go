package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
)

// Conn keeps a Temporal client connected, redialing when the health check
// fails. Get returns nil while no connection is up.
type Conn struct {
	options client.Options
	logger  *logrus.Logger

	dial           func(client.Options) (client.Client, error)
	retryDelay     time.Duration
	healthInterval time.Duration

	mu      sync.RWMutex
	current client.Client
}

func NewConn(options client.Options, logger *logrus.Logger) *Conn {
	return &Conn{
		options:        options,
		logger:         logger,
		dial:           client.Dial,
		retryDelay:     5 * time.Second,
		healthInterval: 10 * time.Second,
	}
}

// Start dials in the background until ctx is cancelled.
func (c *Conn) Start(ctx context.Context) {
	go func() {
		for {
			tc, err := c.dial(c.options)
			if err != nil {
				c.logger.Warnf("Temporal unavailable, retrying in %s: %v", c.retryDelay, err)
				if !sleep(ctx, c.retryDelay) {
					return
				}
				continue
			}
			c.replace(tc)
			c.logger.WithField("host", c.options.HostPort).Info("Connected to Temporal")

			for {
				if !sleep(ctx, c.healthInterval) {
					return
				}
				if err := healthCheck(ctx, tc); err != nil {
					c.logger.Warnf("Temporal connection unhealthy, reconnecting: %v", err)
					break
				}
			}
		}
	}()
}

// Get returns the current client or nil.
func (c *Conn) Get() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Conn) replace(tc client.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Close()
	}
	c.current = tc
}

// Close closes the current client.
func (c *Conn) Close() {
	c.replace(nil)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func healthCheck(ctx context.Context, c client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := c.WorkflowService().GetSystemInfo(ctx, &workflowservice.GetSystemInfoRequest{})
	return err
}
