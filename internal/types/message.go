package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Methods produced on the downlink and services topics.
const (
	MethodStickControl         = "stick_control"
	MethodGimbalReset          = "drc_gimbal_reset"
	MethodCameraFocalLengthSet = "drc_camera_focal_length_set"
	MethodHeartBeat            = "heart_beat"
	MethodCloudControlAuth     = "cloud_control_auth_request"
	MethodDRCModeEnter         = "drc_mode_enter"
	MethodFlyToPoint           = "fly_to_point"
	MethodReturnHome           = "return_home"
	MethodLiveStartPush        = "live_start_push"
	MethodLiveStopPush         = "live_stop_push"
	MethodLiveSetQuality       = "live_set_quality"
	MethodLiveLensChange       = "live_lens_change"
)

// Methods consumed from the uplink, events, reply and status topics.
const (
	MethodOSDInfoPush        = "osd_info_push"
	MethodDroneStatePush     = "drc_drone_state_push"
	MethodBatteriesInfoPush  = "drc_batteries_info_push"
	MethodUpdateTopo         = "update_topo"
	MethodFlyToPointProgress = "fly_to_point_progress"
)

// DRCMessage is a sequenced message on the drc/down topic.
type DRCMessage struct {
	Seq    uint64      `json:"seq"`
	Method string      `json:"method"`
	Data   interface{} `json:"data"`
}

// ServiceRequest is a bid/tid correlated request on the services topic.
type ServiceRequest struct {
	BID       string      `json:"bid"`
	TID       string      `json:"tid"`
	Timestamp int64       `json:"timestamp"`
	Method    string      `json:"method"`
	Data      interface{} `json:"data"`
}

// Envelope is any inbound message. Data is decoded once the method is known.
type Envelope struct {
	BID       string          `json:"bid,omitempty"`
	TID       string          `json:"tid,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Method    string          `json:"method"`
	Data      json.RawMessage `json:"data"`
}

// NewServiceRequest builds a fresh request with new bid and tid.
func NewServiceRequest(method string, data interface{}) ServiceRequest {
	return ServiceRequest{
		BID:       uuid.New().String(),
		TID:       uuid.New().String(),
		Timestamp: Millis(time.Now()),
		Method:    method,
		Data:      data,
	}
}

// Millis converts t to the millisecond timestamps used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
