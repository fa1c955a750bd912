package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/session"
	"github.com/teranos/strata/sym"
)

// ReplCmd edits canvases from the terminal
var ReplCmd = &cobra.Command{
	Use:   "repl",
	Short: "Edit canvases from the terminal",
	Long: `Open the root canvas in an interactive console. Every command is one
gesture on the active canvas; type 'help' for the list.

Edits are saved in the background when autosave is enabled and flushed on exit.`,
	RunE: runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, cfg, runtimeOptions{autosave: true, watch: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	sess := rt.newSession(ctx)
	defer sess.Close()

	con := newConsole(sess, rt.viewport(), cmd.OutOrStdout())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(con.out, pterm.FgCyan.Sprint(sess.Current().Title+" › "))
		if !scanner.Scan() {
			break
		}
		quit, err := con.exec(ctx, scanner.Text())
		if err != nil {
			pterm.Error.Println(err.Error())
			for _, hint := range errors.GetAllHints(err) {
				pterm.Println("  " + hint)
			}
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	return sess.SaveAll(ctx)
}

// console runs one line at a time against a session.
type console struct {
	sess *session.Session
	vp   interact.Viewport
	out  io.Writer
}

type consoleCommand struct {
	usage string
	help  string
	run   func(c *console, ctx context.Context, args []string) error
}

var consoleCommands map[string]consoleCommand

func init() {
	consoleCommands = map[string]consoleCommand{
		"help":     {"help", "list commands", (*console).help},
		"ls":       {"ls", "list nodes and edges on the active canvas", (*console).list},
		"place":    {"place <kind>", "add a node near the viewport centre", (*console).place},
		"select":   {"select <id>", "select a node", (*console).selectNode},
		"connect":  {"connect <id>", "start, complete or cancel a connection", (*console).connect},
		"link":     {"link <from> <to>", "connect two nodes in one step", (*console).link},
		"cancel":   {"cancel", "drop a pending connection", (*console).cancel},
		"kind":     {"kind <edge-kind>", "set the kind of new connections", (*console).edgeKind},
		"activate": {"activate <id>", "select a node and open it when drillable", (*console).activate},
		"open":     {"open <id>", "open a node's sub-canvas", (*console).open},
		"back":     {"back", "go to the parent canvas", (*console).back},
		"forward":  {"forward", "go forward in history", (*console).forward},
		"goto":     {"goto <index>", "jump to a breadcrumb entry", (*console).gotoIndex},
		"where":    {"where", "show the breadcrumb", (*console).where},
		"edit":     {"edit <id> [label] [key=value...]", "relabel a node and set attributes, key= unsets", (*console).edit},
		"move":     {"move <id> <x> <y>", "drag a node to a position", (*console).move},
		"rm":       {"rm <id>", "delete a node and its edges", (*console).remove},
		"unlink":   {"unlink <edge-id>", "delete an edge", (*console).unlink},
		"amount":   {"amount <edge-id> <value|->", "annotate an edge, - clears", (*console).amount},
		"status":   {"status <id>", "advance a node to its next status", (*console).status},
		"rename":   {"rename <title>", "retitle the active canvas", (*console).rename},
		"save":     {"save", "save the active canvas now", (*console).save},
	}
}

func newConsole(sess *session.Session, vp interact.Viewport, out io.Writer) *console {
	return &console{sess: sess, vp: vp, out: out}
}

// exec runs one input line. It reports whether the console should exit.
func (c *console) exec(ctx context.Context, line string) (bool, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return false, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if len(words) == 0 {
		return false, nil
	}
	name, args := words[0], words[1:]
	if name == "quit" || name == "exit" {
		return true, nil
	}
	command, ok := consoleCommands[name]
	if !ok {
		return false, errors.WithHint(errors.NewInvalidRequestError("unknown command %q", name), "type 'help' for commands")
	}
	if err := command.run(c, ctx, args); err != nil {
		if errors.IsInvalidRequestError(err) {
			return false, errors.WithHintf(err, "usage: %s", command.usage)
		}
		return false, err
	}
	return false, nil
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func argCount(args []string, n int) error {
	if len(args) != n {
		return errors.NewInvalidRequestError("expected %d argument(s), got %d", n, len(args))
	}
	return nil
}

func (c *console) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(consoleCommands))
	for name := range consoleCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cc := consoleCommands[name]
		c.printf("  %-34s %s\n", cc.usage, cc.help)
	}
	c.printf("  %-34s %s\n", "quit", "leave the console")
	return nil
}

func (c *console) list(_ context.Context, _ []string) error {
	c.sess.View(func(ctl *interact.Controller, _ *canvas.Stack) {
		g := ctl.Canvas().Graph
		for _, n := range g.Nodes() {
			marker := " "
			switch n.ID {
			case ctl.ConnectingFrom():
				marker = "~"
			case ctl.Selected():
				marker = "*"
			}
			c.printf("%s %s %-12s %s", marker, sym.Glyph(n.Kind), n.ID, n.Label)
			if status := n.StringAttr("status"); status != "" {
				c.printf(" [%s]", status)
			}
			c.printf("\n")
		}
		for _, e := range g.Edges() {
			c.printf("  %s → %s", e.Source, e.Target)
			if e.Kind != "" {
				c.printf(" (%s)", e.Kind)
			}
			if e.Amount != nil {
				c.printf(" %s", strconv.FormatFloat(*e.Amount, 'f', -1, 64))
			}
			c.printf("  %s\n", e.ID)
		}
	})
	return nil
}

// gesture runs fn on the active controller and reports a not-found error for
// id when fn did nothing.
func (c *console) gesture(id string, fn func(ctl *interact.Controller) bool) error {
	var ok, exists bool
	c.sess.Do(func(ctl *interact.Controller) {
		exists = ctl.Canvas().Graph.HasNode(id)
		if exists {
			ok = fn(ctl)
		}
	})
	if !exists {
		return errors.Wrapf(errors.ErrNodeNotFound, "%s", id)
	}
	if !ok {
		c.printf("no change\n")
	}
	return nil
}

func (c *console) place(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	var id string
	var ok bool
	c.sess.Do(func(ctl *interact.Controller) {
		id, ok = ctl.Place(args[0], c.vp)
	})
	if !ok {
		return errors.NewInvalidRequestError("could not place %q", args[0])
	}
	c.printf("placed %s\n", id)
	return nil
}

func (c *console) selectNode(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	return c.gesture(args[0], func(ctl *interact.Controller) bool { return ctl.Select(args[0]) })
}

func (c *console) connect(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	return c.gesture(args[0], func(ctl *interact.Controller) bool {
		pending := ctl.ConnectingFrom()
		edgeID, created := ctl.ConnectGesture(args[0])
		switch {
		case created:
			c.printf("connected %s\n", edgeID)
		case pending == "":
			c.printf("connecting from %s\n", args[0])
		case pending == args[0]:
			c.printf("connection cancelled\n")
		default:
			c.printf("connection rejected\n")
		}
		return true
	})
}

func (c *console) link(_ context.Context, args []string) error {
	if err := argCount(args, 2); err != nil {
		return err
	}
	var edgeID string
	var created bool
	var missing string
	c.sess.Do(func(ctl *interact.Controller) {
		g := ctl.Canvas().Graph
		for _, id := range args {
			if !g.HasNode(id) {
				missing = id
				return
			}
		}
		ctl.CancelConnection()
		ctl.ConnectGesture(args[0])
		edgeID, created = ctl.ConnectGesture(args[1])
	})
	if missing != "" {
		return errors.Wrapf(errors.ErrNodeNotFound, "%s", missing)
	}
	if !created {
		c.printf("connection rejected\n")
		return nil
	}
	c.printf("connected %s\n", edgeID)
	return nil
}

func (c *console) cancel(_ context.Context, _ []string) error {
	c.sess.Do(func(ctl *interact.Controller) { ctl.CancelConnection() })
	return nil
}

func (c *console) edgeKind(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	kind := args[0]
	if kind == "none" {
		kind = ""
	}
	if !sym.IsKnownEdgeKind(kind) {
		return errors.NewInvalidRequestError("unknown edge kind %q", kind)
	}
	c.sess.Do(func(ctl *interact.Controller) { ctl.SetEdgeKind(kind) })
	return nil
}

func (c *console) activate(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	var navigated bool
	err := c.gesture(args[0], func(ctl *interact.Controller) bool {
		navigated = ctl.Activate(args[0])
		return true
	})
	if err != nil {
		return err
	}
	if navigated {
		c.printf("opened %s\n", c.sess.Current().Title)
	} else {
		c.printf("selected %s\n", args[0])
	}
	return nil
}

func (c *console) open(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	if !c.sess.Open(args[0]) {
		return errors.Wrapf(errors.ErrNodeNotFound, "%s", args[0])
	}
	c.printf("opened %s\n", c.sess.Current().Title)
	return nil
}

func (c *console) back(_ context.Context, _ []string) error {
	if !c.sess.GoBack() {
		c.printf("already at the root\n")
	}
	return nil
}

func (c *console) forward(_ context.Context, _ []string) error {
	if !c.sess.GoForward() {
		c.printf("no forward history\n")
	}
	return nil
}

func (c *console) gotoIndex(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.NewInvalidRequestError("index %q is not a number", args[0])
	}
	if !c.sess.GoTo(i) {
		return errors.NewInvalidRequestError("index %d is out of range", i)
	}
	return nil
}

func (c *console) where(_ context.Context, _ []string) error {
	c.sess.View(func(_ *interact.Controller, stack *canvas.Stack) {
		for i, crumb := range stack.Breadcrumb() {
			marker := " "
			if i == stack.Index() {
				marker = ">"
			}
			c.printf("%s %d %s\n", marker, i, crumb.Title)
		}
	})
	return nil
}

// parseAttrs splits key=value words. Numbers become float64 and an empty value
// unsets the key.
func parseAttrs(words []string) (label string, attrs map[string]any, err error) {
	for _, w := range words {
		key, value, ok := strings.Cut(w, "=")
		if !ok {
			if label != "" {
				return "", nil, errors.NewInvalidRequestError("unexpected %q; quote labels with spaces", w)
			}
			label = w
			continue
		}
		if key == "" {
			return "", nil, errors.NewInvalidRequestError("empty attribute name in %q", w)
		}
		if attrs == nil {
			attrs = make(map[string]any)
		}
		if value == "" {
			attrs[key] = nil
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			attrs[key] = f
		} else {
			attrs[key] = value
		}
	}
	return label, attrs, nil
}

func (c *console) edit(_ context.Context, args []string) error {
	if len(args) < 2 {
		return errors.NewInvalidRequestError("nothing to edit")
	}
	label, attrs, err := parseAttrs(args[1:])
	if err != nil {
		return err
	}
	return c.gesture(args[0], func(ctl *interact.Controller) bool { return ctl.Edit(args[0], label, attrs) })
}

func (c *console) move(_ context.Context, args []string) error {
	if err := argCount(args, 3); err != nil {
		return err
	}
	x, errX := strconv.ParseFloat(args[1], 64)
	y, errY := strconv.ParseFloat(args[2], 64)
	if errX != nil || errY != nil {
		return errors.NewInvalidRequestError("position must be numeric")
	}
	return c.gesture(args[0], func(ctl *interact.Controller) bool {
		n, _ := ctl.Canvas().Graph.Node(args[0])
		// Grab the node at its own position so the pointer offset is zero.
		ctl.PointerDown(args[0], n.Position)
		moved := ctl.PointerMove(graph.Position{X: x, Y: y})
		ctl.PointerUp()
		return moved
	})
}

func (c *console) remove(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	return c.gesture(args[0], func(ctl *interact.Controller) bool { return ctl.Delete(args[0]) })
}

func (c *console) edgeGesture(id string, fn func(ctl *interact.Controller) bool) error {
	var ok, exists bool
	c.sess.Do(func(ctl *interact.Controller) {
		_, exists = ctl.Canvas().Graph.Edge(id)
		if exists {
			ok = fn(ctl)
		}
	})
	if !exists {
		return errors.Wrapf(errors.ErrEdgeNotFound, "%s", id)
	}
	if !ok {
		c.printf("no change\n")
	}
	return nil
}

func (c *console) unlink(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	return c.edgeGesture(args[0], func(ctl *interact.Controller) bool { return ctl.Disconnect(args[0]) })
}

func (c *console) amount(_ context.Context, args []string) error {
	if err := argCount(args, 2); err != nil {
		return err
	}
	var amount *float64
	if args[1] != "-" {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return errors.NewInvalidRequestError("amount %q is not a number", args[1])
		}
		amount = &v
	}
	return c.edgeGesture(args[0], func(ctl *interact.Controller) bool { return ctl.SetAmount(args[0], amount) })
}

func (c *console) status(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	next, ok := c.sess.AdvanceStatus(args[0])
	if !ok {
		c.printf("%s has no status cycle\n", args[0])
		return nil
	}
	c.printf("%s is now %s\n", args[0], next)
	return nil
}

func (c *console) rename(_ context.Context, args []string) error {
	if err := argCount(args, 1); err != nil {
		return err
	}
	if !c.sess.RenameCanvas(args[0]) {
		c.printf("no change\n")
	}
	return nil
}

func (c *console) save(ctx context.Context, _ []string) error {
	if err := c.sess.Save(ctx); err != nil {
		return err
	}
	c.printf("saved %s\n", c.sess.Current().Title)
	return nil
}
