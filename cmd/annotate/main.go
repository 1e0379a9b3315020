package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"shape-annotator/internal/annotator/notify"
	"shape-annotator/internal/annotator/remote"
	"shape-annotator/internal/annotator/session"
	"shape-annotator/internal/common/config"
	"shape-annotator/internal/shapes/models"
)

// ============================================================
// Annotate CLI
// ============================================================

func main() {
	cfg := config.Load()

	gateway := flag.String("gateway", cfg.GatewayURL, "gateway base url")
	project := flag.String("project", "", "project title")
	email := flag.String("email", "", "login email")
	password := flag.String("password", "", "login password")
	logToasts := flag.Bool("log", false, "write notifications to the log instead of stdout")
	flag.Parse()

	if *project == "" {
		log.Fatalf("-project is required")
	}

	client, err := remote.New(*gateway)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	ctx := context.Background()
	if *email != "" {
		if err := client.Login(ctx, *email, *password); err != nil {
			log.Fatalf("login: %v", err)
		}
	}

	out := os.Stdout
	var notifier notify.Notifier = notify.Func(func(n notify.Notification) { fmt.Fprintln(out, n) })
	if *logToasts {
		notifier = notify.Log{Tag: "ANNOTATE"}
	}

	bus := session.NewBus()
	s, err := session.Open(ctx, session.Config{
		Project:  *project,
		Store:    client,
		Resolver: client,
		Data:     client,
		Tokens:   client,
		Notifier: notifier,
		Surface:  surface{out: out},
		Edits:    bus,
		Keys:     bus,
	})
	if err != nil {
		log.Fatalf("open session: %v", err)
	}
	defer s.Close()
	s.Wait()

	r := &repl{ctx: ctx, session: s, client: client, bus: bus, out: out}
	r.run(os.Stdin)
}

// surface печатает сводку при каждой перерисовке.
type surface struct {
	out io.Writer
}

func (p surface) Render(shapes models.ShapeList) {
	fmt.Fprintf(p.out, "[render] %d shapes\n", len(shapes))
}

type repl struct {
	ctx     context.Context
	session *session.Session
	client  *remote.Client
	bus     *session.Bus
	out     io.Writer
}

func (r *repl) run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(r.out, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if fields[0] == "quit" || fields[0] == "exit" {
				return
			}
			if err := r.exec(fields[0], fields[1:]); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
		fmt.Fprint(r.out, "> ")
	}
}

func (r *repl) exec(cmd string, args []string) error {
	s := r.session
	switch cmd {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: login <email> <password>")
		}
		if err := r.client.Login(r.ctx, args[0], args[1]); err != nil {
			return err
		}
		id, err := s.RetryIdentity(r.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "identity: %s\n", id)

	case "add":
		shape, err := parseShape(args)
		if err != nil {
			return err
		}
		r.bus.Emit(models.ShapesChanged(append(s.Shapes(), shape)))

	case "clear":
		r.bus.Emit(models.ShapesChanged(models.ShapeList{}))

	case "drag":
		if len(args) != 1 {
			return fmt.Errorf("usage: drag pan|select")
		}
		mode, err := models.ParseDragMode(args[0])
		if err != nil {
			return err
		}
		r.bus.Emit(models.DragModeChanged(mode))

	case "undo":
		if !s.Undo() {
			fmt.Fprintln(r.out, "nothing to undo")
		}

	case "key":
		if len(args) != 1 {
			return fmt.Errorf("usage: key <chord>")
		}
		r.bus.Press(session.ParseKey(args[0]))

	case "save":
		out, err := s.Save(r.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "saved %d shapes as %s\n", out.Count, out.Identity)

	case "project":
		if len(args) != 1 {
			return fmt.Errorf("usage: project <title>")
		}
		err := s.SwitchProject(r.ctx, args[0])
		s.Wait()
		return err

	case "show":
		for i, sh := range s.Shapes() {
			fmt.Fprintf(r.out, "%2d %-6s (%.3f,%.3f)-(%.3f,%.3f) %s %s\n", i, sh.Type, sh.X0, sh.Y0, sh.X1, sh.Y1, sh.Line.Color, sh.Path)
		}

	case "points":
		for _, p := range s.Points() {
			fmt.Fprintf(r.out, "%-12s x=%s y=%s size=%s %s\n", p.Label, p.X, p.Y, p.Size, p.Color)
		}

	case "status":
		saving := ""
		if s.Saving() {
			saving = " (saving)"
		}
		fmt.Fprintf(r.out, "%s phase=%s%s drag=%s history=%d shapes=%d\n",
			s.Identity(), s.Phase(), saving, s.DragMode(), len(s.History()), len(s.Shapes()))

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// parseShape: add <line|rect|circle> x0 y0 x1 y1 [color] | add path <svg-path> [color]
func parseShape(args []string) (models.Shape, error) {
	if len(args) < 2 {
		return models.Shape{}, fmt.Errorf("usage: add <kind> x0 y0 x1 y1 [color] | add path <d> [color]")
	}

	shape := models.Shape{
		Type: models.ShapeKind(args[0]),
		Line: models.LineStyle{Color: "#FFFFFF", Width: 2},
	}

	rest := args[1:]
	if shape.Type == models.KindPath {
		shape.Path = rest[0]
		rest = rest[1:]
	} else {
		if len(rest) < 4 {
			return models.Shape{}, fmt.Errorf("%s needs x0 y0 x1 y1", shape.Type)
		}
		coords := make([]float64, 4)
		for i := range coords {
			v, err := strconv.ParseFloat(rest[i], 64)
			if err != nil {
				return models.Shape{}, fmt.Errorf("coordinate %q: %w", rest[i], err)
			}
			coords[i] = v
		}
		shape.X0, shape.Y0, shape.X1, shape.Y1 = coords[0], coords[1], coords[2], coords[3]
		rest = rest[4:]
	}
	if len(rest) > 0 {
		shape.Line.Color = rest[0]
	}

	return shape, shape.Validate()
}
