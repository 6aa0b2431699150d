package vehicle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/config"
	"github.com/tiiuae/drclink/internal/drc"
	"github.com/tiiuae/drclink/internal/flyto"
	"github.com/tiiuae/drclink/internal/services"
	"github.com/tiiuae/drclink/internal/telemetry"
	"github.com/tiiuae/drclink/internal/transport"
	"github.com/tiiuae/drclink/internal/types"
)

// Client is the session of one vehicle: its connection, telemetry and command producers.
type Client struct {
	ID       types.VehicleIdentity
	Store    *telemetry.Store
	Session  *flyto.Session
	Engine   *drc.Engine
	FlyTo    *flyto.Orchestrator
	Services *services.Publisher
	Recorder *telemetry.Recorder
	Ingester *Ingester

	transport transport.Transport
	out       types.Writer
	ctx       context.Context
	tasks     sync.WaitGroup
	debug     int32
}

// New wires the components of one vehicle. recorder may be nil.
func New(id types.VehicleIdentity, tr transport.Transport, cfg *config.Config, out types.Writer, recorder *telemetry.Recorder) *Client {
	store := telemetry.NewStore()
	session := flyto.NewSession()

	c := &Client{
		ID:        id,
		Store:     store,
		Session:   session,
		Engine:    drc.NewEngine(id, tr, store, out, cfg.DRC, cfg.Timing),
		FlyTo:     flyto.NewOrchestrator(id, tr, store, session, out, cfg.FlyTo, cfg.Timing),
		Services:  services.NewPublisher(id, tr, store, out, cfg),
		Recorder:  recorder,
		transport: tr,
		out:       out,
		ctx:       context.Background(),
	}
	c.Ingester = NewIngester(id, store, session, recorder, out, c.Debug)
	return c
}

// Start subscribes to the vehicle topics and starts the heartbeat.
// Commands started later stop when ctx is done.
func (c *Client) Start(ctx context.Context, wg *sync.WaitGroup) error {
	c.ctx = ctx
	if err := c.transport.Subscribe(c.ID.InboundTopics(), c.Ingester.HandleMessage); err != nil {
		return errors.WithMessagef(err, "%s: could not subscribe", c.ID)
	}
	c.Engine.Start(ctx, wg)
	return nil
}

// Wait blocks until every command task of the vehicle has returned.
func (c *Client) Wait() {
	c.tasks.Wait()
	c.Engine.Wait()
	c.FlyTo.Wait()
}

func (c *Client) Debug() bool {
	return atomic.LoadInt32(&c.debug) == 1
}

func (c *Client) ToggleDebug() bool {
	if atomic.CompareAndSwapInt32(&c.debug, 0, 1) {
		return true
	}
	atomic.StoreInt32(&c.debug, 0)
	return false
}

// Connect requests cloud control and DRC mode without blocking the caller.
func (c *Client) Connect() {
	c.goTask(func() {
		if err := c.Services.Connect(c.ctx); err != nil {
			c.out.Printf("%s connect failed: %v", c.ID, err)
		}
	})
}

// Ascend climbs to height metres above the current position.
func (c *Client) Ascend(height float64, throttle int) <-chan error {
	return c.Engine.AscendToRelativeHeight(c.ctx, height, throttle)
}

func (c *Client) Land() <-chan error {
	return c.Engine.Land(c.ctx)
}

// FlyToPoint runs one fly-to in the background. The outcome is reported to the operator.
func (c *Client) FlyToPoint(wp flyto.Waypoint) {
	c.goTask(func() {
		c.FlyTo.PublishFlyTo(c.ctx, wp)
	})
}

// FlyRoute flies the waypoints in order.
func (c *Client) FlyRoute(points []flyto.Waypoint) <-chan flyto.ListResult {
	c.out.Printf("%s starting route with %d waypoints", c.ID, len(points))
	return c.FlyTo.PublishFlyToList(c.ctx, points)
}

func (c *Client) goTask(fn func()) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		fn()
	}()
}
