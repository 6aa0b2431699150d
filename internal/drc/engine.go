package drc

import (
	"context"
	"encoding/json"
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
	ErrResponseTimeout = errors.New("vehicle did not respond to stick input")
	ErrLandTimeout     = errors.New("landing timed out")
	ErrUnknownKey      = errors.New("unknown nudge key")
)

// Stick profiles observed on the vehicles.
var (
	UnlockStick = types.StickData{Roll: types.StickHigh, Pitch: types.StickLow, Throttle: types.StickLow, Yaw: types.StickLow}
	LockStick   = types.StickData{Roll: types.StickNeutral, Pitch: types.StickNeutral, Throttle: types.StickLow, Yaw: types.StickNeutral}
)

const (
	ascendFreq      = 20
	unlockBurstTime = time.Second
	landFreq        = 10
	lockBurstTime   = 2 * time.Second
	lockBurstFreq   = 10
	nudgeTime       = time.Second
	nudgeFreq       = 20
)

// Engine builds and emits the sequenced messages of one vehicle downlink.
type Engine struct {
	vehicle types.VehicleIdentity
	pub     transport.Publisher
	store   *telemetry.Store
	out     types.Writer
	cfg     config.DRCConfig
	timing  config.Timing

	seq    Sequencer
	sendMu sync.Mutex
	tasks  sync.WaitGroup

	heartbeat int32
	verbose   int32
}

// NewEngine returns an engine with heartbeat enabled. Call Start to run the heartbeat loop.
func NewEngine(vehicle types.VehicleIdentity, pub transport.Publisher, store *telemetry.Store, out types.Writer, cfg config.DRCConfig, timing config.Timing) *Engine {
	return &Engine{
		vehicle:   vehicle,
		pub:       pub,
		store:     store,
		out:       out,
		cfg:       cfg,
		timing:    timing,
		heartbeat: 1,
	}
}

// Start runs the heartbeat loop until ctx is done.
func (e *Engine) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runHeartbeat(ctx)
	}()
}

// Wait blocks until every burst, ascent and landing task has returned.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// Sequence is the next sequence number of the downlink.
func (e *Engine) Sequence() uint64 {
	return e.seq.Current()
}

func (e *Engine) publish(method string, data interface{}, qos byte) (uint64, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	msg := types.DRCMessage{
		Seq:    e.seq.Current(),
		Method: method,
		Data:   data,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return msg.Seq, errors.WithMessagef(err, "Could not encode %s", method)
	}
	if err := e.pub.Publish(e.vehicle.DRCDownTopic(), qos, b); err != nil {
		return msg.Seq, err
	}
	e.seq.Next()
	return msg.Seq, nil
}

// SendStick publishes one stick_control message. Publish failures are logged only.
func (e *Engine) SendStick(s types.StickData) {
	seq, err := e.publish(types.MethodStickControl, s, transport.QoSAtMostOnce)
	if err != nil {
		log.Printf("%s: stick control failed: %v", e.vehicle, err)
		return
	}
	if e.Verbose() {
		e.out.Printf("Stick sent: seq=%d roll=%d pitch=%d throttle=%d yaw=%d", seq, s.Roll, s.Pitch, s.Throttle, s.Yaw)
	}
}

// SendTimedBurst emits floor(duration*freq) stick messages, one every 1/freq seconds,
// on its own goroutine.
func (e *Engine) SendTimedBurst(ctx context.Context, s types.StickData, duration time.Duration, freq float64) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		e.burst(ctx, s, duration, freq)
	}()
}

func (e *Engine) burst(ctx context.Context, s types.StickData, duration time.Duration, freq float64) {
	if freq <= 0 {
		return
	}
	count := int(duration.Seconds() * freq)
	interval := time.Duration(float64(time.Second) / freq)

	for i := 0; i < count; i++ {
		e.SendStick(s)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (e *Engine) Unlock(ctx context.Context) {
	e.SendTimedBurst(ctx, UnlockStick, lockBurstTime, lockBurstFreq)
}

func (e *Engine) Lock(ctx context.Context) {
	e.SendTimedBurst(ctx, LockStick, lockBurstTime, lockBurstFreq)
}

// Nudge deflects one axis by deflection for one second.
// Keys: w/s pitch forward/back, a/d roll, q/e yaw, j/k throttle.
func (e *Engine) Nudge(ctx context.Context, key string, deflection int) error {
	s := types.StickData{Roll: types.StickNeutral, Pitch: types.StickNeutral, Throttle: types.StickNeutral, Yaw: types.StickNeutral}
	switch key {
	case "w":
		s.Pitch -= deflection
	case "s":
		s.Pitch += deflection
	case "a":
		s.Roll -= deflection
	case "d":
		s.Roll += deflection
	case "q":
		s.Yaw -= deflection
	case "e":
		s.Yaw += deflection
	case "j":
		s.Throttle += deflection
	case "k":
		s.Throttle -= deflection
	default:
		return errors.WithMessagef(ErrUnknownKey, "%q", key)
	}
	e.SendTimedBurst(ctx, s, nudgeTime, nudgeFreq)
	return nil
}

// AscendToRelativeHeight unlocks the motors, records the takeoff reference and climbs
// with the given throttle offset until the elevation reaches target. The result is
// delivered on the returned channel and reported to the operator.
func (e *Engine) AscendToRelativeHeight(ctx context.Context, target float64, throttleOffset int) <-chan error {
	done := make(chan error, 1)
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		err := e.ascend(ctx, target, throttleOffset)
		switch {
		case err == nil:
			e.out.Printf("%s reached target height, %.1f m above takeoff", e.vehicle, e.store.Elevation())
		case errors.Cause(err) == ErrResponseTimeout:
			e.out.Printf("%s did not respond, check the connection", e.vehicle)
		default:
			e.out.Printf("%s ascent stopped: %v", e.vehicle, err)
		}
		done <- err
	}()
	return done
}

func (e *Engine) ascend(ctx context.Context, target float64, throttleOffset int) error {
	e.out.Printf("%s ascending to %.1f m", e.vehicle, target)

	e.burst(ctx, UnlockStick, unlockBurstTime, ascendFreq)
	if err := ctx.Err(); err != nil {
		return err
	}

	e.store.MarkTakeoff()
	climb := types.StickData{
		Roll:     types.StickNeutral,
		Pitch:    types.StickNeutral,
		Throttle: types.StickNeutral + throttleOffset,
		Yaw:      types.StickNeutral,
	}

	ticker := time.NewTicker(time.Second / ascendFreq)
	defer ticker.Stop()

	start := time.Now()
	for {
		elevation := e.store.Elevation()
		if elevation >= target {
			return nil
		}
		e.SendStick(climb)
		if elevation < target/10 && time.Since(start) > e.timing.AscendWatchdog {
			return errors.WithMessagef(ErrResponseTimeout, "elevation %.1f m after %v", elevation, e.timing.AscendWatchdog)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Land holds the lock profile until the vehicle reports standby or the land timeout passes.
func (e *Engine) Land(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		err := e.land(ctx)
		switch {
		case err == nil:
			e.out.Printf("%s landed, standing by", e.vehicle)
		case errors.Cause(err) == ErrLandTimeout:
			e.out.Printf("%s landing timed out, check the connection", e.vehicle)
		default:
			e.out.Printf("%s landing stopped: %v", e.vehicle, err)
		}
		done <- err
	}()
	return done
}

func (e *Engine) land(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / landFreq)
	defer ticker.Stop()

	start := time.Now()
	for {
		e.SendStick(LockStick)
		if time.Since(start) > e.timing.LandTimeout {
			return ErrLandTimeout
		}
		if e.store.Mode() == types.FlightModeStandby0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResetGimbal sends drc_gimbal_reset. Modes: 0 recenter, 1 down, 2 recenter yaw, 3 pitch down.
func (e *Engine) ResetGimbal(mode int) error {
	_, err := e.publish(types.MethodGimbalReset, types.GimbalResetData{
		PayloadIndex: e.cfg.PayloadIndex,
		ResetMode:    mode,
	}, transport.QoSAtMostOnce)
	return errors.WithMessage(err, "Gimbal reset failed")
}

// SetZoom sets the zoom camera focal length factor.
func (e *Engine) SetZoom(factor int) error {
	_, err := e.publish(types.MethodCameraFocalLengthSet, types.FocalLengthData{
		CameraType:   "zoom",
		PayloadIndex: e.cfg.PayloadIndex,
		ZoomFactor:   factor,
	}, transport.QoSAtMostOnce)
	return errors.WithMessage(err, "Zoom failed")
}

func (e *Engine) runHeartbeat(ctx context.Context) {
	freq := e.cfg.HeartbeatFreq
	if freq <= 0 {
		freq = 1
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / freq))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.beat()
		}
	}
}

func (e *Engine) beat() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: heartbeat panic: %v", e.vehicle, r)
		}
	}()

	if !e.HeartbeatEnabled() {
		return
	}
	data := types.HeartBeatData{Timestamp: types.Millis(time.Now())}
	if _, err := e.publish(types.MethodHeartBeat, data, transport.QoSAtLeastOnce); err != nil {
		log.Printf("%s: heartbeat failed: %v", e.vehicle, err)
	}
}

func (e *Engine) HeartbeatEnabled() bool {
	return atomic.LoadInt32(&e.heartbeat) == 1
}

// ToggleHeartbeat flips the heartbeat flag and returns the new state.
func (e *Engine) ToggleHeartbeat() bool {
	return toggle(&e.heartbeat)
}

func (e *Engine) Verbose() bool {
	return atomic.LoadInt32(&e.verbose) == 1
}

// ToggleVerbose flips per-message logging and returns the new state.
func (e *Engine) ToggleVerbose() bool {
	return toggle(&e.verbose)
}

func toggle(flag *int32) bool {
	for {
		old := atomic.LoadInt32(flag)
		if atomic.CompareAndSwapInt32(flag, old, 1-old) {
			return old == 0
		}
	}
}
