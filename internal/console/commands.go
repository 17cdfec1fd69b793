package console

import (
	"errors"
	"fmt"
	"strings"

	"github.com/schovi/nodemux/internal/escape"
	"github.com/schovi/nodemux/internal/session"
)

type commandFunc func(c *Console, args []string) error

var commands = map[string]commandFunc{
	"hosts":       selectGroup("hosts"),
	"switches":    selectGroup("switches"),
	"controllers": selectGroup("controllers"),
	"select":      cmdSelect,
	"focus":       cmdFocus,
	"int":         cmdInt,
	"stop":        cmdStop,
	"clear":       cmdClear,
	"all":         cmdAll,
	"keys":        cmdKeys,
	"list":        cmdList,
	"show":        cmdShow,
	"help":        cmdHelp,
	"quit":        cmdQuit,
}

var commandHelp = []struct {
	usage string
	desc  string
}{
	{":hosts :switches :controllers", "show a group"},
	{":select GROUP", "show any configured group"},
	{":focus NODE", "send plain lines to NODE"},
	{":int [NODE]", "interrupt the focused node or NODE"},
	{":stop", "interrupt the shown group and wait for it to settle"},
	{":clear", "clear output of the shown group"},
	{":all CMD", "run CMD on every idle node of the shown group"},
	{":keys TEXT", "send TEXT with escapes (\\n, \\t, ^C) to the focused command"},
	{":list", "list groups and node states"},
	{":show [NODE]", "replay buffered output"},
	{":help", "show this help"},
	{":quit", "interrupt everything and exit"},
}

func selectGroup(name string) commandFunc {
	return func(c *Console, _ []string) error {
		return c.Select(name)
	}
}

func cmdSelect(c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: :select GROUP")
	}
	return c.Select(args[0])
}

func cmdFocus(c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: :focus NODE")
	}
	if err := c.SetFocus(args[0]); err != nil {
		return err
	}
	c.printf("focus %s\n", args[0])
	return nil
}

func cmdInt(c *Console, args []string) error {
	s := c.focus
	if len(args) > 0 {
		var ok bool
		if s, ok = c.reg.Get(args[0]); !ok {
			return fmt.Errorf("unknown node %q", args[0])
		}
	}
	if s == nil {
		return errors.New("no node focused")
	}
	if err := c.intr.Interrupt(s); err != nil {
		return err
	}
	return c.settle(s)
}

// cmdStop interrupts the shown group, then reads each node until its
// prompt is back so its output has settled before reporting.
func cmdStop(c *Console, _ []string) error {
	sessions := c.selected.Sessions
	if err := errors.Join(c.intr.InterruptAll(sessions), c.settle(sessions...)); err != nil {
		return err
	}
	c.printf("stopped %s\n", c.selected.Name)
	return nil
}

func cmdClear(c *Console, _ []string) error {
	for _, s := range c.selected.Sessions {
		s.Clear()
	}
	return nil
}

func cmdAll(c *Console, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: :all CMD")
	}
	cmd := strings.Join(args, " ")
	var errs []error
	for _, s := range c.selected.Sessions {
		if s.Dead() || s.Waiting() {
			continue
		}
		if err := s.SendCmd(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cmdKeys(c *Console, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: :keys TEXT")
	}
	if c.focus == nil {
		return errors.New("no node focused")
	}
	if !c.focus.Waiting() {
		return fmt.Errorf("%s is not running a command", c.focus.ID())
	}
	data, err := escape.Keys(strings.Join(args, " "))
	if err != nil {
		return err
	}
	for _, b := range data {
		if err := c.focus.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func cmdList(c *Console, _ []string) error {
	for _, g := range c.reg.Groups() {
		marker := " "
		if g == c.selected {
			marker = "*"
		}
		ids := make([]string, 0, len(g.Sessions))
		for _, s := range g.Sessions {
			ids = append(ids, describe(c, s))
		}
		c.printf("%s %s: %s\n", marker, g.Name, strings.Join(ids, " "))
	}
	return nil
}

func describe(c *Console, s *session.Session) string {
	d := s.ID()
	if s.State() != session.StateIdle {
		d += "(" + string(s.State()) + ")"
	}
	if s == c.focus {
		d = ">" + d
	}
	return d
}

func cmdShow(c *Console, args []string) error {
	if len(args) == 0 {
		for _, s := range c.selected.Sessions {
			c.show(s, showTail)
		}
		return nil
	}
	s, ok := c.reg.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown node %q", args[0])
	}
	c.show(s, showTail)
	return nil
}

func cmdHelp(c *Console, _ []string) error {
	for _, h := range commandHelp {
		c.printf("  %-32s %s\n", h.usage, h.desc)
	}
	c.printf("  lines starting with NODE# go to NODE, others to the focused node\n")
	return nil
}

func cmdQuit(c *Console, _ []string) error {
	c.Quit()
	return nil
}
