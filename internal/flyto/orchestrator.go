package flyto

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/config"
	"github.com/tiiuae/drclink/internal/telemetry"
	"github.com/tiiuae/drclink/internal/transport"
	"github.com/tiiuae/drclink/internal/types"
)

var (
	ErrAckTimeout      = errors.New("fly-to was not acknowledged")
	ErrRejected        = errors.New("fly-to was rejected")
	ErrProgressTimeout = errors.New("fly-to progress stalled")
	ErrFailed          = errors.New("fly-to failed")
	ErrCancelled       = errors.New("fly-to was cancelled")
	ErrBusy            = errors.New("a fly-to is already running")
)

// Waypoint is a target position with height relative to the takeoff reference.
type Waypoint struct {
	Lat    float64
	Lon    float64
	Height float64
}

// ListResult reports how far a waypoint list got.
type ListResult struct {
	Completed int
	Total     int
	Err       error
}

// Orchestrator issues fly_to_point requests for one vehicle and follows them to a terminal state.
type Orchestrator struct {
	vehicle types.VehicleIdentity
	pub     transport.Publisher
	store   *telemetry.Store
	session *Session
	out     types.Writer
	cfg     config.FlyToConfig
	timing  config.Timing

	ids   uint64
	busy  int32
	tasks sync.WaitGroup
}

func NewOrchestrator(vehicle types.VehicleIdentity, pub transport.Publisher, store *telemetry.Store, session *Session, out types.Writer, cfg config.FlyToConfig, timing config.Timing) *Orchestrator {
	return &Orchestrator{
		vehicle: vehicle,
		pub:     pub,
		store:   store,
		session: session,
		out:     out,
		cfg:     cfg,
		timing:  timing,
	}
}

func (o *Orchestrator) Session() *Session {
	return o.session
}

// Wait blocks until every running waypoint list has returned.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

func (o *Orchestrator) nextID() string {
	n := atomic.AddUint64(&o.ids, 1)
	return fmt.Sprintf("flyto_%s_%d", o.vehicle.GatewaySN, n)
}

func (o *Orchestrator) acquire() bool {
	return atomic.CompareAndSwapInt32(&o.busy, 0, 1)
}

func (o *Orchestrator) release() {
	atomic.StoreInt32(&o.busy, 0)
}

// PublishFlyTo flies to one point and blocks until it succeeds, fails or times out.
func (o *Orchestrator) PublishFlyTo(ctx context.Context, wp Waypoint) error {
	if !o.acquire() {
		o.out.Printf("%s: %v", o.vehicle, ErrBusy)
		return ErrBusy
	}
	defer o.release()

	err := o.flyTo(ctx, wp)
	o.report(wp, err)
	return err
}

// PublishFlyToList flies the points in order on its own goroutine and stops at the first failure.
func (o *Orchestrator) PublishFlyToList(ctx context.Context, points []Waypoint) <-chan ListResult {
	done := make(chan ListResult, 1)
	if !o.acquire() {
		o.out.Printf("%s: %v", o.vehicle, ErrBusy)
		done <- ListResult{Total: len(points), Err: ErrBusy}
		return done
	}

	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		defer o.release()

		res := o.runList(ctx, points)
		if res.Err != nil {
			o.out.Printf("%s route aborted at waypoint %d: %v", o.vehicle, res.Completed+1, res.Err)
		}
		o.out.Printf("%s route: %d of %d waypoints completed", o.vehicle, res.Completed, res.Total)
		done <- res
	}()
	return done
}

func (o *Orchestrator) runList(ctx context.Context, points []Waypoint) (res ListResult) {
	res.Total = len(points)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: route runner panic: %v", o.vehicle, r)
			res.Err = errors.Errorf("route runner panic: %v", r)
		}
	}()

	for i, wp := range points {
		err := o.flyTo(ctx, wp)
		o.session.Reset(o.nextID(), "")
		if err != nil {
			res.Err = errors.WithMessagef(err, "waypoint %d", i+1)
			return res
		}
		o.out.Printf("%s reached waypoint %d of %d", o.vehicle, i+1, len(points))
		res.Completed++
	}
	return res
}

func (o *Orchestrator) flyTo(ctx context.Context, wp Waypoint) error {
	id := o.nextID()
	req := types.NewServiceRequest(types.MethodFlyToPoint, types.FlyToPointData{
		FlyToID:  id,
		MaxSpeed: o.cfg.MaxSpeed,
		Points: []types.FlyToPoint{{
			Height:    o.store.TakeoffHeight() + wp.Height,
			Latitude:  wp.Lat,
			Longitude: wp.Lon,
		}},
	})
	b, err := json.Marshal(req)
	if err != nil {
		return errors.WithMessage(err, "Could not encode fly-to")
	}

	o.session.Reset(id, req.TID)
	if err := o.pub.Publish(o.vehicle.ServicesTopic(), transport.QoSAtLeastOnce, b); err != nil {
		o.session.setPhase(PhaseTerminal)
		return errors.WithMessage(err, "Could not publish fly-to")
	}
	o.session.setPhase(PhaseAwaitingAck)

	if err := o.awaitAck(ctx); err != nil {
		o.session.setPhase(PhaseTerminal)
		return err
	}
	o.session.setPhase(PhaseInProgress)

	err = o.awaitProgress(ctx)
	o.session.setPhase(PhaseTerminal)
	return err
}

func (o *Orchestrator) awaitAck(ctx context.Context) error {
	ticker := time.NewTicker(o.timing.PollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(o.timing.AckTimeout)
	for {
		switch o.session.State().Ack {
		case AckAccepted:
			return nil
		case AckRejected:
			return ErrRejected
		}
		if time.Now().After(deadline) {
			return ErrAckTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) awaitProgress(ctx context.Context) error {
	ticker := time.NewTicker(o.timing.PollInterval)
	defer ticker.Stop()

	for {
		st := o.session.State()
		switch st.Progress {
		case ProgressSucceeded:
			return nil
		case ProgressFailed:
			return ErrFailed
		case ProgressCancelled:
			return ErrCancelled
		}
		if time.Since(st.LastEvent) > o.timing.ProgressTimeout {
			return ErrProgressTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) report(wp Waypoint, err error) {
	if err != nil {
		o.out.Printf("%s fly-to (%.6f, %.6f) failed: %v", o.vehicle, wp.Lat, wp.Lon, err)
		return
	}
	o.out.Printf("%s arrived at (%.6f, %.6f)", o.vehicle, wp.Lat, wp.Lon)
}
