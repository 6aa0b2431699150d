package types

// Stick axis values. The protocol encodes each axis as an integer centred on Neutral.
const (
	StickNeutral = 1024
	StickLow     = 365
	StickHigh    = 1680
)

// StickData is the data of a stick_control message.
type StickData struct {
	Roll     int `json:"roll"`
	Pitch    int `json:"pitch"`
	Throttle int `json:"throttle"`
	Yaw      int `json:"yaw"`
}

type GimbalResetData struct {
	PayloadIndex string `json:"payload_index"`
	ResetMode    int    `json:"reset_mode"`
}

type FocalLengthData struct {
	CameraType   string `json:"camera_type"`
	PayloadIndex string `json:"payload_index"`
	ZoomFactor   int    `json:"zoom_factor"`
}

type HeartBeatData struct {
	Timestamp int64 `json:"timestamp"`
}

type CloudControlAuthData struct {
	ControlKeys  []string `json:"control_keys"`
	UserCallsign string   `json:"user_callsign"`
	UserID       string   `json:"user_id"`
}

type DRCBroker struct {
	Address    string `json:"address"`
	ClientID   string `json:"client_id"`
	EnableTLS  bool   `json:"enable_tls"`
	ExpireTime int64  `json:"expire_time"`
	Password   string `json:"password"`
	Username   string `json:"username"`
}

type DRCModeEnterData struct {
	HSIFrequency int       `json:"hsi_frequency"`
	MQTTBroker   DRCBroker `json:"mqtt_broker"`
	OSDFrequency int       `json:"osd_frequency"`
}

type FlyToPoint struct {
	Height    float64 `json:"height"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type FlyToPointData struct {
	FlyToID  string       `json:"fly_to_id"`
	MaxSpeed float64      `json:"max_speed"`
	Points   []FlyToPoint `json:"points"`
}

type LiveStartPushData struct {
	URL          string `json:"url"`
	URLType      int    `json:"url_type"`
	VideoID      string `json:"video_id"`
	VideoQuality int    `json:"video_quality"`
}

type LiveStopPushData struct {
	VideoID string `json:"video_id"`
}

type LiveSetQualityData struct {
	VideoID      string `json:"video_id"`
	VideoQuality int    `json:"video_quality"`
}

type LiveLensChangeData struct {
	VideoID   string `json:"video_id"`
	VideoType string `json:"video_type"`
}

// OSDInfo is the data of osd_info_push. Elevation is optional on some firmware.
type OSDInfo struct {
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Height       float64  `json:"height"`
	Elevation    *float64 `json:"elevation,omitempty"`
	AttitudeHead float64  `json:"attitude_head"`
}

type DroneStateData struct {
	ModeCode int `json:"mode_code"`
}

type BatteriesData struct {
	CapacityPercent int `json:"capacity_percent"`
}

type SubDevice struct {
	SN string `json:"sn"`
}

type TopoData struct {
	SubDevices []SubDevice `json:"sub_devices"`
}

// ReplyData is the data of any services_reply message.
type ReplyData struct {
	Result int `json:"result"`
}

type FlyToProgressData struct {
	FlyToID string `json:"fly_to_id"`
	Status  string `json:"status"`
	Result  int    `json:"result"`
}

// Wayline status strings reported in fly_to_point_progress.
const (
	WaylineCancel   = "wayline_cancel"
	WaylineFailed   = "wayline_failed"
	WaylineOK       = "wayline_ok"
	WaylineProgress = "wayline_progress"
)
