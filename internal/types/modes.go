package types

// FlightMode is the aircraft mode_code reported in drc_drone_state_push.
type FlightMode int

// FlightModeUnknown is used until the first state push arrives.
const FlightModeUnknown FlightMode = -1

const (
	FlightModeStandby0 FlightMode = iota
	FlightModeTakeoffPreparing1
	FlightModeTakeoffReady2
	FlightModeManual3
	FlightModeAutoTakeoff4
	FlightModeWayline5
	FlightModePanoramic6
	FlightModeActiveTrack7
	FlightModeADSBAvoidance8
	FlightModeAutoReturnHome9
	FlightModeAutoLanding10
	FlightModeForcedLanding11
	FlightModeThreeBladeLanding12
	FlightModeUpgrading13
	FlightModeDisconnected14
	FlightModeAPAS15
	FlightModeVirtualStick16
	FlightModeLiveFlightControls17
)

var flightModeNames = [...]string{
	"standby",
	"takeoff preparing",
	"takeoff ready",
	"manual",
	"auto takeoff",
	"wayline",
	"panoramic",
	"active track",
	"ADS-B avoidance",
	"auto return home",
	"auto landing",
	"forced landing",
	"three-blade landing",
	"upgrading",
	"disconnected",
	"APAS",
	"virtual stick",
	"live flight controls",
}

func (m FlightMode) String() string {
	if m < 0 || int(m) >= len(flightModeNames) {
		return "unknown"
	}
	return flightModeNames[m]
}
