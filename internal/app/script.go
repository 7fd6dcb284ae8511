package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ai-labeller/internal/fusion"
	"ai-labeller/internal/session"
	"ai-labeller/pkg/geometry"
)

// Script drives the navigator from line-oriented edit commands, one per line:
//
//	press X Y | move X Y | release X Y
//	select I | class N | active N | resize X1 Y1 X2 Y2
//	delete | clear | undo | redo | fuse [IOU] | detect
//	save | next | prev | goto I | split NAME | boxes | quit
//
// Blank lines and lines starting with # are ignored.
type Script struct {
	nav *Navigator
	out io.Writer
}

// NewScript creates a Script writing command output to out.
func NewScript(nav *Navigator, out io.Writer) *Script {
	return &Script{nav: nav, out: out}
}

// Run executes commands from r until EOF or quit. It stops at the first
// failing command and reports its line number.
func (s *Script) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		quit, err := s.Exec(ctx, scanner.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// Exec runs one command. It reports true for quit.
func (s *Script) Exec(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "save":
		return false, s.nav.Save()
	case "next", "prev":
		step := s.nav.Next
		if cmd == "prev" {
			step = s.nav.Prev
		}
		moved, err := step(ctx)
		if err != nil {
			return false, err
		}
		if !moved {
			fmt.Fprintf(s.out, "no %s image\n", cmd)
		}
		return false, nil
	case "goto":
		i, err := intArgs(args, 1)
		if err != nil {
			return false, err
		}
		return false, s.nav.Open(ctx, i[0])
	case "split":
		if len(args) != 1 {
			return false, fmt.Errorf("split: expected 1 argument")
		}
		return false, s.nav.SetSplit(ctx, args[0])
	case "detect":
		res, err := s.nav.Detect(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "detected %d, added %d (%s)\n", res.Raw, res.Added, res.Model)
		return false, nil
	}

	sess := s.nav.Session()
	if sess == nil {
		return false, ErrNoImage
	}
	return false, s.edit(sess, cmd, args)
}

// edit applies a session command.
func (s *Script) edit(sess *session.Session, cmd string, args []string) error {
	switch cmd {
	case "press", "move", "release":
		v, err := floatArgs(args, 2)
		if err != nil {
			return err
		}
		p := geometry.NewPoint2D(v[0], v[1])
		switch cmd {
		case "press":
			sess.Press(p)
		case "move":
			sess.Move(p)
		case "release":
			sess.Release(p)
		}
	case "select":
		i, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		if !sess.Select(i[0]) {
			return fmt.Errorf("no box %d", i[0])
		}
	case "class":
		i, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		if !sess.SetSelectedClass(i[0]) {
			return fmt.Errorf("class: nothing selected")
		}
	case "active":
		i, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		sess.SetActiveClass(i[0])
	case "resize":
		v, err := floatArgs(args, 4)
		if err != nil {
			return err
		}
		if !sess.ResizeSelected(geometry.NewBox(v[0], v[1], v[2], v[3], 0)) {
			return fmt.Errorf("resize: nothing selected")
		}
	case "delete":
		sess.DeleteSelected()
	case "clear":
		sess.ClearAll()
	case "undo":
		sess.Undo()
	case "redo":
		sess.Redo()
	case "fuse":
		threshold := fusion.DefaultThreshold
		if len(args) > 0 {
			v, err := floatArgs(args, 1)
			if err != nil {
				return err
			}
			threshold = v[0]
		}
		sess.Fuse(threshold)
	case "boxes":
		for i, b := range sess.Boxes() {
			mark := " "
			if i == sess.Selected() {
				mark = "*"
			}
			fmt.Fprintf(s.out, "%s%d class=%d [%.1f %.1f %.1f %.1f]\n", mark, i, b.ClassID, b.X1, b.Y1, b.X2, b.Y2)
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func floatArgs(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func intArgs(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", a)
		}
		out[i] = v
	}
	return out, nil
}
