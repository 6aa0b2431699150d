package telemetry

import (
	"sync"
	"time"

	"github.com/tiiuae/drclink/internal/types"
)

// Record is the last known state of one vehicle.
type Record struct {
	Longitude     float64
	Latitude      float64
	Height        float64
	Elevation     float64
	Heading       float64
	Mode          types.FlightMode
	Battery       int
	DeviceSN      string
	TakeoffHeight float64
	HasTakeoff    bool
	UpdatedAt     time.Time
}

// Store holds the Record of one vehicle. The ingester writes, everyone else reads.
type Store struct {
	mu  sync.RWMutex
	rec Record
}

func NewStore() *Store {
	return &Store{rec: Record{Mode: types.FlightModeUnknown, Battery: -1}}
}

// Snapshot returns a copy of the whole record.
func (s *Store) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// UpdateOSD overwrites position, height and heading. Elevation comes from the
// push when present, otherwise it is derived from the takeoff reference.
func (s *Store) UpdateOSD(osd types.OSDInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.Longitude = osd.Longitude
	s.rec.Latitude = osd.Latitude
	s.rec.Height = osd.Height
	s.rec.Heading = osd.AttitudeHead
	switch {
	case osd.Elevation != nil:
		s.rec.Elevation = *osd.Elevation
	case s.rec.HasTakeoff:
		s.rec.Elevation = osd.Height - s.rec.TakeoffHeight
	}
	s.rec.UpdatedAt = time.Now()
}

func (s *Store) SetMode(code int) {
	s.mu.Lock()
	s.rec.Mode = types.FlightMode(code)
	s.mu.Unlock()
}

func (s *Store) SetBattery(percent int) {
	s.mu.Lock()
	s.rec.Battery = percent
	s.mu.Unlock()
}

// SetDeviceSNOnce stores the aircraft serial unless one is already known.
// It reports whether the serial was stored.
func (s *Store) SetDeviceSNOnce(sn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.DeviceSN != "" || sn == "" {
		return false
	}
	s.rec.DeviceSN = sn
	return true
}

// MarkTakeoff records the current absolute height as the takeoff reference and returns it.
// Elevation is measured from the new reference, so it restarts at 0.
func (s *Store) MarkTakeoff() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.TakeoffHeight = s.rec.Height
	s.rec.HasTakeoff = true
	s.rec.Elevation = 0
	return s.rec.TakeoffHeight
}

func (s *Store) Elevation() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Elevation
}

func (s *Store) Height() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Height
}

func (s *Store) Mode() types.FlightMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Mode
}

func (s *Store) DeviceSN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.DeviceSN
}

// TakeoffHeight returns the takeoff reference, or 0 if no ascent has been commanded yet.
func (s *Store) TakeoffHeight() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.TakeoffHeight
}
