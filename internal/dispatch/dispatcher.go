package dispatch

import (
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/tiiuae/drclink/internal/types"
)

// ScopeAll is the broadcast scope.
const ScopeAll = -1

// AllToken selects every vehicle wherever a vehicle number is asked for.
const AllToken = "99"

var ErrUnknownScope = errors.New("unknown vehicle")

type pending struct {
	cmd    Command
	step   int
	prompt string
}

// Dispatcher routes operator input to the menu of the selected scope and drives
// multi-turn commands one input at a time.
type Dispatcher struct {
	mu       sync.Mutex
	fleet    *Menu
	vehicles []*Menu
	scope    int
	pending  *pending
	out      types.Writer
}

// New returns a dispatcher in broadcast scope. vehicles[i] is the menu of vehicle i.
func New(fleet *Menu, vehicles []*Menu, out types.Writer) *Dispatcher {
	return &Dispatcher{
		fleet:    fleet,
		vehicles: vehicles,
		scope:    ScopeAll,
		out:      out,
	}
}

// Scope returns the selected vehicle index or ScopeAll.
func (d *Dispatcher) Scope() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scope
}

// Pending reports the token and step of the multi-turn command awaiting input.
func (d *Dispatcher) Pending() (token string, step int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", 0, false
	}
	return d.pending.cmd.Token, d.pending.step, true
}

// SelectScope takes a 1-based vehicle number or AllToken / "all".
// Anything else leaves the scope unchanged.
func (d *Dispatcher) SelectScope(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectScope(token)
}

func (d *Dispatcher) selectScope(token string) error {
	idx, err := ParseVehicle(token, len(d.vehicles))
	if err != nil {
		return err
	}
	d.scope = idx
	if idx == ScopeAll {
		d.out.Println("Controlling all vehicles")
	} else {
		d.out.Printf("Controlling vehicle %d", idx+1)
	}
	return nil
}

// ParseVehicle converts a 1-based vehicle number, AllToken or "all" to an index or ScopeAll.
func ParseVehicle(token string, count int) (int, error) {
	token = strings.TrimSpace(token)
	if token == AllToken || strings.EqualFold(token, "all") {
		return ScopeAll, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 || n > count {
		return 0, errors.WithMessagef(ErrUnknownScope, "%q, expected 1..%d or %s", token, count, AllToken)
	}
	return n - 1, nil
}

// ScopeCommand is the multi-turn command that selects the scope.
func (d *Dispatcher) ScopeCommand() StepFunc {
	return func(input string, step int) (int, string, error) {
		if step == 0 {
			return 1, "Vehicle number (99 for all): ", nil
		}
		// called with d.mu held
		if err := d.selectScope(input); err != nil {
			return step, "", err
		}
		return 0, "", nil
	}
}

func (d *Dispatcher) menu() *Menu {
	if d.scope == ScopeAll || d.scope >= len(d.vehicles) {
		return d.fleet
	}
	return d.vehicles[d.scope]
}

// PrintMenu shows the menu of the current scope.
func (d *Dispatcher) PrintMenu() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.menu().Print(d.out)
}

// Dispatch handles one line of operator input.
func (d *Dispatcher) Dispatch(input string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Command %q panicked: %v", input, r)
			d.out.Printf("Command failed: %v", r)
			d.pending = nil
		}
	}()

	input = strings.TrimSpace(input)

	if p := d.pending; p != nil {
		next, prompt, err := p.cmd.Step(input, p.step)
		if err != nil && next != 0 {
			d.out.Printf("Invalid input: %v", err)
			d.out.Println(p.prompt)
			return
		}
		if err != nil {
			d.out.Printf("%s: %v", p.cmd.Help, err)
		}
		d.advance(p.cmd, next, prompt)
		return
	}

	if input == "" {
		return
	}

	cmd, ok := d.menu().Lookup(input)
	if !ok && d.menu() != d.fleet {
		cmd, ok = d.fleet.Lookup(input)
	}
	if !ok {
		d.out.Printf("Unknown command %q", input)
		return
	}

	if !cmd.MultiTurn() {
		if err := cmd.Run(); err != nil {
			d.out.Printf("%s: %v", cmd.Help, err)
		}
		return
	}

	next, prompt, err := cmd.Step(input, 0)
	if err != nil {
		d.out.Printf("%s: %v", cmd.Help, err)
	}
	d.advance(cmd, next, prompt)
}

func (d *Dispatcher) advance(cmd Command, next int, prompt string) {
	if next == 0 {
		d.pending = nil
		return
	}
	d.pending = &pending{cmd: cmd, step: next, prompt: prompt}
	d.out.Println(prompt)
}
