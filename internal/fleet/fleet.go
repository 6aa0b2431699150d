package fleet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/config"
	"github.com/tiiuae/drclink/internal/dispatch"
	"github.com/tiiuae/drclink/internal/flyto"
	"github.com/tiiuae/drclink/internal/types"
	"github.com/tiiuae/drclink/internal/vehicle"
)

// MaxRoutes is the number of preset routes bound to menu tokens.
const MaxRoutes = 3

// Route is a named preset waypoint list.
type Route struct {
	Name   string
	Points []flyto.Waypoint
}

// LoadRoutes reads the configured routes in order.
func LoadRoutes(cfgs []config.RouteConfig) ([]Route, error) {
	routes := make([]Route, 0, len(cfgs))
	for _, rc := range cfgs {
		points, err := flyto.LoadRoute(rc)
		if err != nil {
			return nil, err
		}
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("route %d", len(routes)+1)
		}
		routes = append(routes, Route{Name: name, Points: points})
	}
	return routes, nil
}

// Fleet issues commands to one or all vehicles.
type Fleet struct {
	vehicles []*vehicle.Client
	routes   []Route
	out      types.Writer
}

func New(vehicles []*vehicle.Client, routes []Route, out types.Writer) *Fleet {
	return &Fleet{
		vehicles: vehicles,
		routes:   routes,
		out:      out,
	}
}

// Targets resolves a vehicle number or the all-vehicles token.
func (f *Fleet) Targets(token string) ([]*vehicle.Client, error) {
	idx, err := dispatch.ParseVehicle(token, len(f.vehicles))
	if err != nil {
		return nil, err
	}
	if idx == dispatch.ScopeAll {
		return f.vehicles, nil
	}
	return f.vehicles[idx : idx+1], nil
}

func (f *Fleet) each(targets []*vehicle.Client, what string, fn func(c *vehicle.Client) error) {
	for _, c := range targets {
		if err := fn(c); err != nil {
			f.out.Printf("%s %s: %v", c.ID, what, err)
		}
	}
}

// Menu returns the broadcast menu.
func (f *Fleet) Menu() *dispatch.Menu {
	m := dispatch.NewMenu("All vehicles")

	m.Add("b", "request cloud control on every gateway", func() error {
		f.each(f.vehicles, "cloud control", func(c *vehicle.Client) error {
			return c.Services.RequestCloudControl()
		})
		return nil
	})
	m.Add("c", "enter DRC mode on every gateway", func() error {
		f.each(f.vehicles, "DRC mode", func(c *vehicle.Client) error {
			return c.Services.EnterDRC()
		})
		return nil
	})
	m.AddMulti("d", "start live", f.vehicleStep(true, "start live", func(c *vehicle.Client) error {
		return c.Services.StartLive()
	}))
	m.AddMulti("e", "stop live", f.vehicleStep(true, "stop live", func(c *vehicle.Client) error {
		return c.Services.StopLive()
	}))
	m.AddMulti("1", "ascend to height", f.ascendStep())
	m.AddMulti("2", "land", f.vehicleStep(true, "land", func(c *vehicle.Client) error {
		c.Land()
		return nil
	}))
	m.AddMulti("3", "return home", f.vehicleStep(true, "return home", func(c *vehicle.Client) error {
		return c.Services.ReturnHome()
	}))
	if len(f.routes) > 0 {
		m.AddMulti("4", fmt.Sprintf("fly to a point of %s", f.routes[0].Name), f.pointStep(f.routes[0]))
	}
	for i, r := range f.routes {
		if i == MaxRoutes {
			break
		}
		route := r
		m.AddMulti(strconv.Itoa(5+i), fmt.Sprintf("fly %s", route.Name), f.vehicleStep(false, route.Name, func(c *vehicle.Client) error {
			c.FlyRoute(route.Points)
			return nil
		}))
	}

	return m
}

func (f *Fleet) vehiclePrompt(allowAll bool) string {
	if allowAll {
		return fmt.Sprintf("Vehicle number (1..%d, %s for all): ", len(f.vehicles), dispatch.AllToken)
	}
	return fmt.Sprintf("Vehicle number (1..%d): ", len(f.vehicles))
}

func (f *Fleet) pick(input string, allowAll bool) ([]*vehicle.Client, error) {
	targets, err := f.Targets(input)
	if err != nil {
		return nil, err
	}
	if !allowAll && len(targets) != 1 {
		return nil, errors.New("pick a single vehicle")
	}
	return targets, nil
}

// vehicleStep asks for a vehicle number and applies fn to the chosen vehicles.
func (f *Fleet) vehicleStep(allowAll bool, what string, fn func(c *vehicle.Client) error) dispatch.StepFunc {
	return func(input string, step int) (int, string, error) {
		if step == 0 {
			return 1, f.vehiclePrompt(allowAll), nil
		}
		targets, err := f.pick(input, allowAll)
		if err != nil {
			return step, "", err
		}
		f.each(targets, what, fn)
		return 0, "", nil
	}
}

func (f *Fleet) ascendStep() dispatch.StepFunc {
	var (
		targets []*vehicle.Client
		height  float64
	)
	return func(input string, step int) (int, string, error) {
		switch step {
		case 0:
			return 1, f.vehiclePrompt(true), nil
		case 1:
			t, err := f.pick(input, true)
			if err != nil {
				return step, "", err
			}
			targets = t
			return 2, "Height above current position (m): ", nil
		case 2:
			h, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
			if err != nil || h <= 0 {
				return step, "", errors.Errorf("%q is not a positive height", input)
			}
			height = h
			return 3, fmt.Sprintf("Throttle offset (1..%d): ", vehicle.MaxThrottleOffset), nil
		default:
			throttle, err := strconv.Atoi(strings.TrimSpace(input))
			if err != nil || throttle < 1 || throttle > vehicle.MaxThrottleOffset {
				return step, "", errors.Errorf("%q is not a throttle offset in 1..%d", input, vehicle.MaxThrottleOffset)
			}
			for _, c := range targets {
				c.Ascend(height, throttle)
			}
			return 0, "", nil
		}
	}
}

func (f *Fleet) pointStep(route Route) dispatch.StepFunc {
	var target *vehicle.Client
	return func(input string, step int) (int, string, error) {
		switch step {
		case 0:
			return 1, f.vehiclePrompt(false), nil
		case 1:
			t, err := f.pick(input, false)
			if err != nil {
				return step, "", err
			}
			target = t[0]
			var b strings.Builder
			for i, p := range route.Points {
				fmt.Fprintf(&b, "%d.\t%.7f\t%.7f\n", i+1, p.Lat, p.Lon)
			}
			fmt.Fprintf(&b, "Waypoint (1..%d): ", len(route.Points))
			return 2, b.String(), nil
		default:
			n, err := strconv.Atoi(strings.TrimSpace(input))
			if err != nil || n < 1 || n > len(route.Points) {
				return step, "", errors.Errorf("%q is not a waypoint of %s", input, route.Name)
			}
			p := route.Points[n-1]
			f.out.Printf("Waypoint %d selected: lat %.7f lon %.7f height %.1f", n, p.Lat, p.Lon, p.Height)
			target.FlyRoute([]flyto.Waypoint{p})
			return 0, "", nil
		}
	}
}
