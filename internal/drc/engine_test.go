package drc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/config"
	"github.com/tiiuae/drclink/internal/telemetry"
	"github.com/tiiuae/drclink/internal/transport/transporttest"
	"github.com/tiiuae/drclink/internal/types"
)

type lines struct {
	mu  sync.Mutex
	out []string
}

func (l *lines) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	l.out = append(l.out, fmt.Sprintf(format, v...))
	l.mu.Unlock()
}

func (l *lines) Println(v ...interface{}) {
	l.mu.Lock()
	l.out = append(l.out, fmt.Sprintln(v...))
	l.mu.Unlock()
}

type sentMessage struct {
	Seq    uint64          `json:"seq"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, m transporttest.Message) (sentMessage, types.StickData) {
	t.Helper()
	var msg sentMessage
	if err := json.Unmarshal(m.Payload, &msg); err != nil {
		t.Fatal(err)
	}
	var stick types.StickData
	if msg.Method == types.MethodStickControl {
		if err := json.Unmarshal(msg.Data, &stick); err != nil {
			t.Fatal(err)
		}
	}
	return msg, stick
}

var testVehicle = types.VehicleIdentity{GatewaySN: "GW1", Index: 0}

func newTestEngine(timing config.Timing) (*Engine, *transporttest.Fake, *telemetry.Store) {
	fake := &transporttest.Fake{}
	store := telemetry.NewStore()
	cfg := config.Default().DRC
	return NewEngine(testVehicle, fake, store, &lines{}, cfg, timing), fake, store
}

func TestSequencerConcurrent(t *testing.T) {
	const callers, calls = 8, 1000

	var s Sequencer
	var wg sync.WaitGroup
	results := make([][]uint64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				results[i] = append(results[i], s.Next())
			}
		}(i)
	}
	wg.Wait()

	var all []uint64
	for _, r := range results {
		for k := 1; k < len(r); k++ {
			if r[k] <= r[k-1] {
				t.Fatalf("Sequence not increasing within a caller: %d after %d", r[k], r[k-1])
			}
		}
		all = append(all, r...)
	}
	sort.Slice(all, func(a, b int) bool { return all[a] < all[b] })
	for i, v := range all {
		if v != uint64(i) {
			t.Fatalf("Expected %d at position %d, got %d", i, i, v)
		}
	}
	if s.Current() != callers*calls {
		t.Errorf("Expected final counter %d, got %d", callers*calls, s.Current())
	}
}

func TestSendStick(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())

	e.SendStick(types.StickData{Roll: 1, Pitch: 2, Throttle: 3, Yaw: 4})

	msgs := fake.Published()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Topic != "thing/product/GW1/drc/down" {
		t.Errorf("Unexpected topic %s", msgs[0].Topic)
	}
	msg, stick := decode(t, msgs[0])
	if msg.Seq != 0 || msg.Method != types.MethodStickControl {
		t.Errorf("Unexpected message %+v", msg)
	}
	if stick != (types.StickData{Roll: 1, Pitch: 2, Throttle: 3, Yaw: 4}) {
		t.Errorf("Unexpected stick %+v", stick)
	}
}

func TestSequenceSharedAcrossMethods(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())

	e.SendStick(LockStick)
	if err := e.ResetGimbal(1); err != nil {
		t.Fatal(err)
	}
	if err := e.SetZoom(4); err != nil {
		t.Fatal(err)
	}

	want := []string{types.MethodStickControl, types.MethodGimbalReset, types.MethodCameraFocalLengthSet}
	for i, m := range fake.Published() {
		msg, _ := decode(t, m)
		if msg.Seq != uint64(i) || msg.Method != want[i] {
			t.Errorf("Message %d: got seq %d method %s", i, msg.Seq, msg.Method)
		}
	}
	if e.Sequence() != 3 {
		t.Errorf("Expected next sequence 3, got %d", e.Sequence())
	}

	var zoom types.FocalLengthData
	msg, _ := decode(t, fake.Published()[2])
	if err := json.Unmarshal(msg.Data, &zoom); err != nil {
		t.Fatal(err)
	}
	if zoom.ZoomFactor != 4 || zoom.CameraType != "zoom" || zoom.PayloadIndex != "88-0-0" {
		t.Errorf("Unexpected zoom data %+v", zoom)
	}
}

func TestTimedBurst(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())

	e.SendTimedBurst(context.Background(), UnlockStick, 500*time.Millisecond, 20)
	e.Wait()

	msgs := fake.Published()
	if len(msgs) != 10 {
		t.Fatalf("Expected 10 messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if _, stick := decode(t, m); stick != UnlockStick {
			t.Errorf("Unexpected stick %+v", stick)
		}
	}
}

func TestAscendReachesHeight(t *testing.T) {
	e, fake, store := newTestEngine(config.DefaultTiming())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for !store.Snapshot().HasTakeoff {
			time.Sleep(5 * time.Millisecond)
		}
		elevation := 0.0
		for elevation < 10 {
			elevation += 0.5
			el := elevation
			store.UpdateOSD(types.OSDInfo{Elevation: &el})
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()

	start := time.Now()
	select {
	case err := <-e.AscendToRelativeHeight(ctx, 5, 200):
		if err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ascent did not finish")
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Expected the unlock burst to run first, finished in %v", elapsed)
	}
	if store.Elevation() < 5 {
		t.Errorf("Expected elevation >= 5, got %v", store.Elevation())
	}

	var unlock, climb int
	for _, m := range fake.Published() {
		_, stick := decode(t, m)
		switch stick {
		case UnlockStick:
			unlock++
		case types.StickData{Roll: 1024, Pitch: 1024, Throttle: 1224, Yaw: 1024}:
			climb++
		}
	}
	if unlock != 20 {
		t.Errorf("Expected 20 unlock messages, got %d", unlock)
	}
	if climb == 0 {
		t.Error("Expected climb messages")
	}
}

func TestAscendExactTargetCountsAsReached(t *testing.T) {
	e, _, store := newTestEngine(config.DefaultTiming())

	go func() {
		for !store.Snapshot().HasTakeoff {
			time.Sleep(5 * time.Millisecond)
		}
		el := 5.0
		store.UpdateOSD(types.OSDInfo{Elevation: &el})
	}()

	select {
	case err := <-e.AscendToRelativeHeight(context.Background(), 5, 200):
		if err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Ascent did not finish")
	}
}

func TestSecondAscentClimbsFromNewReference(t *testing.T) {
	timing := config.DefaultTiming()
	timing.AscendWatchdog = 200 * time.Millisecond
	e, fake, store := newTestEngine(timing)

	store.UpdateOSD(types.OSDInfo{Height: 100})
	store.MarkTakeoff()
	store.UpdateOSD(types.OSDInfo{Height: 105})
	if store.Elevation() != 5 {
		t.Fatalf("Expected elevation 5 after the first ascent, got %v", store.Elevation())
	}

	select {
	case err := <-e.AscendToRelativeHeight(context.Background(), 3, 200):
		if errors.Cause(err) != ErrResponseTimeout {
			t.Fatalf("Expected the second ascent to wait for new telemetry, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Ascent did not finish")
	}

	climb := 0
	for _, m := range fake.Published() {
		if _, stick := decode(t, m); stick.Throttle == 1224 {
			climb++
		}
	}
	if climb == 0 {
		t.Error("Expected climb messages on the second ascent")
	}
	if store.TakeoffHeight() != 105 {
		t.Errorf("Expected takeoff reference 105, got %v", store.TakeoffHeight())
	}
}

func TestAscendWatchdog(t *testing.T) {
	timing := config.DefaultTiming()
	timing.AscendWatchdog = 200 * time.Millisecond
	e, _, _ := newTestEngine(timing)

	select {
	case err := <-e.AscendToRelativeHeight(context.Background(), 5, 200):
		if errors.Cause(err) != ErrResponseTimeout {
			t.Fatalf("Expected response timeout, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Watchdog did not fire")
	}
}

func TestAscendCancelled(t *testing.T) {
	e, _, _ := newTestEngine(config.DefaultTiming())
	ctx, cancel := context.WithCancel(context.Background())

	done := e.AscendToRelativeHeight(ctx, 5, 200)
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ascent ignored cancellation")
	}
}

func TestLandUntilStandby(t *testing.T) {
	e, fake, store := newTestEngine(config.DefaultTiming())
	store.SetMode(int(types.FlightModeManual3))

	done := e.Land(context.Background())
	time.Sleep(300 * time.Millisecond)
	store.SetMode(int(types.FlightModeStandby0))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Land did not finish")
	}

	msgs := fake.Published()
	if len(msgs) < 2 {
		t.Fatalf("Expected several land messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if _, stick := decode(t, m); stick != LockStick {
			t.Errorf("Unexpected stick %+v", stick)
		}
	}
}

func TestLandTimeout(t *testing.T) {
	timing := config.DefaultTiming()
	timing.LandTimeout = 200 * time.Millisecond
	e, _, store := newTestEngine(timing)
	store.SetMode(int(types.FlightModeAutoLanding10))

	select {
	case err := <-e.Land(context.Background()):
		if errors.Cause(err) != ErrLandTimeout {
			t.Fatalf("Expected land timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Land did not time out")
	}
}

func TestNudge(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())

	if err := e.Nudge(context.Background(), "x", 100); errors.Cause(err) != ErrUnknownKey {
		t.Fatalf("Expected unknown key, got %v", err)
	}

	tests := []struct {
		key  string
		want types.StickData
	}{
		{"w", types.StickData{Roll: 1024, Pitch: 924, Throttle: 1024, Yaw: 1024}},
		{"s", types.StickData{Roll: 1024, Pitch: 1124, Throttle: 1024, Yaw: 1024}},
		{"a", types.StickData{Roll: 924, Pitch: 1024, Throttle: 1024, Yaw: 1024}},
		{"e", types.StickData{Roll: 1024, Pitch: 1024, Throttle: 1024, Yaw: 1124}},
		{"j", types.StickData{Roll: 1024, Pitch: 1024, Throttle: 1124, Yaw: 1024}},
	}
	for _, tt := range tests {
		fake.Reset()
		if err := e.Nudge(context.Background(), tt.key, 100); err != nil {
			t.Fatal(err)
		}
		e.Wait()

		msgs := fake.Published()
		if len(msgs) != 20 {
			t.Fatalf("%s: expected 20 messages, got %d", tt.key, len(msgs))
		}
		if _, stick := decode(t, msgs[0]); stick != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.key, tt.want, stick)
		}
	}
}

func TestFailedPublishKeepsSequence(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())

	e.SendStick(LockStick)
	fake.OnPublish(func(topic string, payload []byte) error {
		return errors.New("broker unavailable")
	})
	e.SendStick(LockStick)
	if err := e.SetZoom(2); err == nil {
		t.Fatal("Expected publish error")
	}
	fake.OnPublish(nil)
	e.SendStick(LockStick)

	msgs := fake.Published()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if msg, _ := decode(t, m); msg.Seq != uint64(i) {
			t.Errorf("Message %d: expected seq %d, got %d", i, i, msg.Seq)
		}
	}
	if e.Sequence() != 2 {
		t.Errorf("Expected next sequence 2, got %d", e.Sequence())
	}
}

func TestHeartbeatSurvivesFailures(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())
	e.cfg.HeartbeatFreq = 2

	var attempts int32
	fake.OnPublish(func(topic string, payload []byte) error {
		switch atomic.AddInt32(&attempts, 1) {
		case 1:
			return errors.New("broker unavailable")
		case 2:
			panic("publish exploded")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	e.Start(ctx, &wg)
	time.Sleep(5*time.Second + 100*time.Millisecond)
	cancel()
	wg.Wait()

	n := atomic.LoadInt32(&attempts)
	if n < 9 || n > 11 {
		t.Errorf("Expected 9 to 11 heartbeats, got %d", n)
	}
	beats := fake.Count(types.MethodHeartBeat)
	if beats != int(n)-2 {
		t.Errorf("Expected %d heartbeats after the failures, got %d", n-2, beats)
	}
}

func TestHeartbeatToggle(t *testing.T) {
	e, fake, _ := newTestEngine(config.DefaultTiming())
	e.cfg.HeartbeatFreq = 50

	if e.ToggleHeartbeat() {
		t.Fatal("Expected heartbeat disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	e.Start(ctx, &wg)
	time.Sleep(200 * time.Millisecond)
	cancel()
	wg.Wait()

	if n := fake.Count(types.MethodHeartBeat); n != 0 {
		t.Errorf("Expected no heartbeats while disabled, got %d", n)
	}
	if !e.ToggleHeartbeat() {
		t.Error("Expected heartbeat enabled again")
	}
}

func TestToggleVerbose(t *testing.T) {
	out := &lines{}
	e := NewEngine(testVehicle, &transporttest.Fake{}, telemetry.NewStore(), out, config.Default().DRC, config.DefaultTiming())

	e.SendStick(LockStick)
	if len(out.out) != 0 {
		t.Fatal("Expected no output while quiet")
	}
	if !e.ToggleVerbose() {
		t.Fatal("Expected verbose enabled")
	}
	e.SendStick(LockStick)
	if len(out.out) != 1 {
		t.Errorf("Expected one line, got %v", out.out)
	}
}
