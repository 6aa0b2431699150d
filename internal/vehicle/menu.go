package vehicle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/dispatch"
	"github.com/tiiuae/drclink/internal/flyto"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// MaxThrottleOffset keeps the climb stick inside the throttle axis range.
const MaxThrottleOffset = 660

func parseFloat(input string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	return v, errors.Wrapf(err, "%q is not a number", input)
}

func parseInt(input string, min, max int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, errors.Errorf("%q is not an integer", input)
	}
	if v < min || v > max {
		return 0, errors.Errorf("%d is outside %d..%d", v, min, max)
	}
	return v, nil
}

// Menu returns the commands of this vehicle.
func (c *Client) Menu() *dispatch.Menu {
	m := dispatch.NewMenu(fmt.Sprintf("Vehicle %s", c.ID))

	m.Add("x", "request cloud control", c.Services.RequestCloudControl)
	m.Add("j", "enter DRC mode", c.Services.EnterDRC)
	m.Add("f", "stick unlock", func() error {
		c.Engine.Unlock(c.ctx)
		return nil
	})
	m.Add("g", "stick lock", func() error {
		c.Engine.Lock(c.ctx)
		return nil
	})
	m.AddMulti("h", "ascend to height", c.ascendStep())
	m.Add("l", "land", func() error {
		c.Land()
		return nil
	})
	m.AddMulti("k", "nudge", c.nudgeStep())
	m.AddMulti("e", "reset gimbal", intStep("Gimbal reset: 0 recenter, 1 down, 2 recenter yaw, 3 pitch down: ", 0, 3, c.Engine.ResetGimbal))
	m.AddMulti("r", "zoom", intStep("Zoom factor: ", 1, 200, c.Engine.SetZoom))
	m.AddMulti("t", "set live camera", intStep("Lens: 1 thermal, 2 wide, 3 zoom: ", 1, 3, c.Services.ChangeLens))
	m.AddMulti("y", "set live quality", intStep("Quality: 0 auto, 1 smooth, 2 standard, 3 high, 4 ultra: ", 0, 4, c.Services.SetLiveQuality))
	m.Add("u", "start live", c.Services.StartLive)
	m.Add("v", "stop live", c.Services.StopLive)
	m.Add("p", "return home", c.Services.ReturnHome)
	m.AddMulti("w", "fly to point", c.flyToStep())
	m.Add("d", "toggle debug output", func() error {
		c.out.Printf("%s debug output %s", c.ID, onOff(c.ToggleDebug()))
		return nil
	})
	m.Add("o", "toggle OSD recording", func() error {
		if c.Recorder == nil {
			return errors.New("recording is not configured")
		}
		c.out.Printf("%s OSD recording %s", c.ID, onOff(c.Recorder.Toggle()))
		return nil
	})
	m.Add("m", "toggle heartbeat", func() error {
		c.out.Printf("%s heartbeat %s", c.ID, onOff(c.Engine.ToggleHeartbeat()))
		return nil
	})
	m.Add("n", "toggle DRC message output", func() error {
		c.out.Printf("%s DRC message output %s", c.ID, onOff(c.Engine.ToggleVerbose()))
		return nil
	})

	return m
}

// intStep asks for one integer in [min, max] and passes it to apply.
func intStep(prompt string, min, max int, apply func(int) error) dispatch.StepFunc {
	return func(input string, step int) (int, string, error) {
		if step == 0 {
			return 1, prompt, nil
		}
		v, err := parseInt(input, min, max)
		if err != nil {
			return step, "", err
		}
		return 0, "", apply(v)
	}
}

func (c *Client) ascendStep() dispatch.StepFunc {
	var height float64
	return func(input string, step int) (int, string, error) {
		switch step {
		case 0:
			return 1, "Height above current position (m): ", nil
		case 1:
			h, err := parseFloat(input)
			if err != nil {
				return step, "", err
			}
			if h <= 0 {
				return step, "", errors.New("height must be positive")
			}
			height = h
			return 2, "Throttle offset: ", nil
		default:
			throttle, err := parseInt(input, 1, MaxThrottleOffset)
			if err != nil {
				return step, "", err
			}
			c.Ascend(height, throttle)
			return 0, "", nil
		}
	}
}

func (c *Client) nudgeStep() dispatch.StepFunc {
	var key string
	return func(input string, step int) (int, string, error) {
		switch step {
		case 0:
			return 1, "Direction: w forward, s back, a left, d right, q/e yaw, j up, k down: ", nil
		case 1:
			key = strings.TrimSpace(input)
			if !strings.Contains("wsadqejk", key) || len(key) != 1 {
				return step, "", errors.Errorf("%q is not a direction key", input)
			}
			return 2, "Stick deflection: ", nil
		default:
			deflection, err := parseInt(input, 1, 660)
			if err != nil {
				return step, "", err
			}
			return 0, "", c.Engine.Nudge(c.ctx, key, deflection)
		}
	}
}

func (c *Client) flyToStep() dispatch.StepFunc {
	var wp flyto.Waypoint
	return func(input string, step int) (int, string, error) {
		switch step {
		case 0:
			return 1, "Latitude: ", nil
		case 1:
			lat, err := parseFloat(input)
			if err != nil {
				return step, "", err
			}
			if lat < -90 || lat > 90 {
				return step, "", errors.Errorf("latitude %v is outside -90..90", lat)
			}
			wp.Lat = lat
			return 2, "Longitude: ", nil
		case 2:
			lon, err := parseFloat(input)
			if err != nil {
				return step, "", err
			}
			if lon < -180 || lon > 180 {
				return step, "", errors.Errorf("longitude %v is outside -180..180", lon)
			}
			wp.Lon = lon
			return 3, "Height above takeoff (m): ", nil
		default:
			h, err := parseFloat(input)
			if err != nil {
				return step, "", err
			}
			wp.Height = h
			c.FlyToPoint(wp)
			return 0, "", nil
		}
	}
}
