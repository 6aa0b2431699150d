package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/config"
	"github.com/tiiuae/drclink/internal/telemetry"
	"github.com/tiiuae/drclink/internal/transport"
	"github.com/tiiuae/drclink/internal/types"
)

var (
	ErrDeviceUnknown = errors.New("aircraft serial is not known yet")
	ErrInvalidLens   = errors.New("lens must be 1 (thermal), 2 (wide) or 3 (zoom)")
	ErrInvalidLevel  = errors.New("video quality must be 0..4")
)

// Lenses selectable by live_lens_change, by operator number.
var Lenses = map[int]string{
	1: "thermal",
	2: "wide",
	3: "zoom",
}

const (
	connectPause = 100 * time.Millisecond
	videoIndex   = "normal-0"
	urlTypeRTMP  = 1
)

// Publisher sends bid/tid correlated requests on the services topic of one vehicle.
type Publisher struct {
	vehicle types.VehicleIdentity
	pub     transport.Publisher
	store   *telemetry.Store
	out     types.Writer
	cfg     *config.Config
}

func NewPublisher(vehicle types.VehicleIdentity, pub transport.Publisher, store *telemetry.Store, out types.Writer, cfg *config.Config) *Publisher {
	return &Publisher{
		vehicle: vehicle,
		pub:     pub,
		store:   store,
		out:     out,
		cfg:     cfg,
	}
}

func (p *Publisher) request(method string, data interface{}) (types.ServiceRequest, error) {
	req := types.NewServiceRequest(method, data)
	b, err := json.Marshal(req)
	if err != nil {
		return req, errors.WithMessagef(err, "Could not encode %s", method)
	}
	if err := p.pub.Publish(p.vehicle.ServicesTopic(), transport.QoSAtLeastOnce, b); err != nil {
		return req, errors.WithMessagef(err, "Could not send %s", method)
	}
	p.out.Printf("%s sent %s", p.vehicle, method)
	return req, nil
}

// RequestCloudControl asks the pilot to grant flight control to this client.
func (p *Publisher) RequestCloudControl() error {
	_, err := p.request(types.MethodCloudControlAuth, types.CloudControlAuthData{
		ControlKeys:  []string{"flight"},
		UserCallsign: p.cfg.DRC.UserCallsign,
		UserID:       p.cfg.DRC.UserID,
	})
	return err
}

// EnterDRC switches the gateway to direct remote control through our broker.
func (p *Publisher) EnterDRC() error {
	expire := time.Now().Add(p.cfg.DRC.TokenLifetime)
	password, err := p.drcPassword(expire)
	if err != nil {
		return err
	}

	_, err = p.request(types.MethodDRCModeEnter, types.DRCModeEnterData{
		HSIFrequency: p.cfg.DRC.HSIFrequency,
		OSDFrequency: p.cfg.DRC.OSDFrequency,
		MQTTBroker: types.DRCBroker{
			Address:    fmt.Sprintf("%s:1883", p.cfg.HostAddr),
			ClientID:   fmt.Sprintf("sn_%s", p.vehicle.GatewaySN),
			EnableTLS:  false,
			ExpireTime: expire.Unix(),
			Password:   password,
			Username:   p.cfg.Broker.Username,
		},
	})
	return err
}

// drcPassword signs the broker credential handed to the gateway. Without a
// configured secret the plain broker password is passed on.
func (p *Publisher) drcPassword(expire time.Time) (string, error) {
	if p.cfg.DRC.BrokerSecret == "" {
		return p.cfg.Broker.Password, nil
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Subject:   p.vehicle.GatewaySN,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: expire.Unix(),
	})
	signed, err := token.SignedString([]byte(p.cfg.DRC.BrokerSecret))
	return signed, errors.WithMessage(err, "Could not sign DRC broker password")
}

// Connect requests cloud control and then DRC mode.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := p.RequestCloudControl(); err != nil {
		return err
	}
	if err := pause(ctx); err != nil {
		return err
	}
	if err := p.EnterDRC(); err != nil {
		return err
	}
	return pause(ctx)
}

func pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectPause):
		return nil
	}
}

func (p *Publisher) ReturnHome() error {
	_, err := p.request(types.MethodReturnHome, nil)
	return err
}

func (p *Publisher) videoID() (string, error) {
	sn := p.store.DeviceSN()
	if sn == "" {
		return "", ErrDeviceUnknown
	}
	return fmt.Sprintf("%s/%s/%s", sn, p.cfg.DRC.PayloadIndex, videoIndex), nil
}

// StartLive pushes the main camera to <rtmp_base>/DroneNNN.
func (p *Publisher) StartLive() error {
	id, err := p.videoID()
	if err != nil {
		return err
	}
	_, err = p.request(types.MethodLiveStartPush, types.LiveStartPushData{
		URL:          fmt.Sprintf("%s/Drone%03d", p.cfg.Live.RTMPBase, p.vehicle.Index+1),
		URLType:      urlTypeRTMP,
		VideoID:      id,
		VideoQuality: p.cfg.Live.VideoQuality,
	})
	return err
}

func (p *Publisher) StopLive() error {
	id, err := p.videoID()
	if err != nil {
		return err
	}
	_, err = p.request(types.MethodLiveStopPush, types.LiveStopPushData{VideoID: id})
	return err
}

// SetLiveQuality sets 0 auto, 1 smooth, 2 standard, 3 high or 4 ultra.
func (p *Publisher) SetLiveQuality(level int) error {
	if level < 0 || level > 4 {
		return ErrInvalidLevel
	}
	id, err := p.videoID()
	if err != nil {
		return err
	}
	_, err = p.request(types.MethodLiveSetQuality, types.LiveSetQualityData{VideoID: id, VideoQuality: level})
	return err
}

// ChangeLens switches the streamed lens, see Lenses.
func (p *Publisher) ChangeLens(lens int) error {
	name, ok := Lenses[lens]
	if !ok {
		return ErrInvalidLens
	}
	id, err := p.videoID()
	if err != nil {
		return err
	}
	_, err = p.request(types.MethodLiveLensChange, types.LiveLensChangeData{VideoID: id, VideoType: name})
	return err
}
