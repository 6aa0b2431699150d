package dispatch

import (
	"sort"

	"github.com/tiiuae/drclink/internal/types"
)

// StepFunc runs one turn of a multi-turn command. It is first called with step 0.
// It returns the step to continue with, 0 when the command is complete, and the
// prompt for that step. An error with a non-zero step means the input was invalid:
// the step is kept and its prompt shown again. An error with step 0 ends the command.
type StepFunc func(input string, step int) (next int, prompt string, err error)

// Command is either single-turn (Run) or multi-turn (Step).
type Command struct {
	Token string
	Help  string
	Run   func() error
	Step  StepFunc
}

func (c Command) MultiTurn() bool {
	return c.Step != nil
}

// Menu maps input tokens to commands.
type Menu struct {
	Title    string
	commands map[string]Command
}

func NewMenu(title string) *Menu {
	return &Menu{
		Title:    title,
		commands: make(map[string]Command),
	}
}

// Add registers a single-turn command, replacing any command with the same token.
func (m *Menu) Add(token, help string, run func() error) {
	m.commands[token] = Command{Token: token, Help: help, Run: run}
}

// AddMulti registers a multi-turn command.
func (m *Menu) AddMulti(token, help string, step StepFunc) {
	m.commands[token] = Command{Token: token, Help: help, Step: step}
}

func (m *Menu) Lookup(token string) (Command, bool) {
	c, ok := m.commands[token]
	return c, ok
}

// Commands returns the commands sorted by token.
func (m *Menu) Commands() []Command {
	out := make([]Command, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func (m *Menu) Print(w types.Writer) {
	w.Println("==================================================")
	w.Println(m.Title)
	for _, c := range m.Commands() {
		w.Printf("  %s - %s", c.Token, c.Help)
	}
	w.Println("==================================================")
}
