package vehicle

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tiiuae/drclink/internal/flyto"
	"github.com/tiiuae/drclink/internal/telemetry"
	"github.com/tiiuae/drclink/internal/types"
)

// Ingester demultiplexes the inbound messages of one vehicle into its telemetry
// store and fly-to session. It never panics into the transport.
type Ingester struct {
	id       types.VehicleIdentity
	store    *telemetry.Store
	session  *flyto.Session
	recorder *telemetry.Recorder
	out      types.Writer
	debug    func() bool
}

func NewIngester(id types.VehicleIdentity, store *telemetry.Store, session *flyto.Session, recorder *telemetry.Recorder, out types.Writer, debug func() bool) *Ingester {
	if debug == nil {
		debug = func() bool { return false }
	}
	return &Ingester{
		id:       id,
		store:    store,
		session:  session,
		recorder: recorder,
		out:      out,
		debug:    debug,
	}
}

// HandleMessage is the transport callback. Malformed and unroutable messages are dropped.
func (in *Ingester) HandleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: dropped message on %s: %v", in.id, topic, r)
		}
	}()

	kind := in.id.Classify(topic)
	if kind == types.TopicUnknown {
		return
	}

	var env types.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if in.debug() {
			log.Printf("%s: malformed message on %s: %v", in.id, topic, err)
		}
		return
	}

	switch kind {
	case types.TopicStatus:
		in.handleStatus(env)
	case types.TopicDRCUp:
		in.handleDRCUp(env)
	case types.TopicServicesReply:
		in.handleReply(env)
	case types.TopicEvents:
		in.handleEvent(env)
	}
}

func (in *Ingester) handleStatus(env types.Envelope) {
	if env.Method != types.MethodUpdateTopo || in.store.DeviceSN() != "" {
		return
	}
	var topo types.TopoData
	if !in.decode(env, &topo) {
		return
	}
	for _, dev := range topo.SubDevices {
		if in.store.SetDeviceSNOnce(dev.SN) {
			if in.debug() {
				in.out.Printf("Device status: gateway %s, aircraft %s", in.id.GatewaySN, dev.SN)
			}
			return
		}
	}
}

func (in *Ingester) handleDRCUp(env types.Envelope) {
	switch env.Method {
	case types.MethodOSDInfoPush:
		var osd types.OSDInfo
		if !in.decode(env, &osd) {
			return
		}
		in.store.UpdateOSD(osd)
		if in.debug() {
			in.out.Printf("OSD %s: lat %.7f lon %.7f height %.2f", in.id, osd.Latitude, osd.Longitude, osd.Height)
		}
		if in.recorder != nil {
			if err := in.recorder.Record(env.Data, time.Now()); err != nil {
				log.Printf("%s: %v", in.id, err)
			}
		}
	case types.MethodDroneStatePush:
		var state types.DroneStateData
		if in.decode(env, &state) {
			in.store.SetMode(state.ModeCode)
		}
	case types.MethodBatteriesInfoPush:
		var battery types.BatteriesData
		if in.decode(env, &battery) {
			in.store.SetBattery(battery.CapacityPercent)
		}
	}
}

func (in *Ingester) handleReply(env types.Envelope) {
	reply := types.ReplyData{Result: -1}
	switch env.Method {
	case types.MethodFlyToPoint:
		if !in.decode(env, &reply) {
			return
		}
		if !in.session.HandleReply(env.TID, reply.Result) {
			return
		}
		if reply.Result == 0 {
			in.out.Printf("%s fly-to accepted", in.id)
		} else {
			in.out.Printf("%s fly-to rejected, code %d", in.id, reply.Result)
		}
	case types.MethodReturnHome:
		if !in.decode(env, &reply) {
			return
		}
		if reply.Result == 0 {
			in.out.Printf("%s return home accepted", in.id)
		} else {
			in.out.Printf("%s return home failed, code %d", in.id, reply.Result)
		}
	}
}

func (in *Ingester) handleEvent(env types.Envelope) {
	if env.Method != types.MethodFlyToPointProgress {
		return
	}
	var progress types.FlyToProgressData
	if in.decode(env, &progress) {
		in.session.HandleProgress(progress.FlyToID, progress.Status)
	}
}

func (in *Ingester) decode(env types.Envelope, v interface{}) bool {
	if len(env.Data) == 0 {
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		if in.debug() {
			log.Printf("%s: bad %s data: %v", in.id, env.Method, err)
		}
		return false
	}
	return true
}
