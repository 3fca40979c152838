package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial"

	"github.com/gwillem/mearm/pkg/control"
	"github.com/gwillem/mearm/pkg/robot"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return nameStyle
			default:
				return cellStyle
			}
		}).
		Render()
}

func formatAngle(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

type HomeCommand struct{}

func (c *HomeCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ctl.HomeAll(ctx, s.id); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("All joints homed"))
	return nil
}

type SelfTestCommand struct {
	Yes   bool          `short:"y" long:"yes" description:"Skip the confirmation prompt"`
	Step  float64       `long:"step" default:"0.5" description:"Degrees per sweep step"`
	Dwell time.Duration `long:"dwell" default:"500ms" description:"Pause at each joint's max"`
}

func (c *SelfTestCommand) Execute(args []string) error {
	if !c.Yes {
		var ok bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Are the servos disconnected from the arm?").
					Description("The self-test drives every joint through its full range.").
					Affirmative("Yes, run it").
					Negative("Cancel").
					Value(&ok),
			),
		)
		if err := form.Run(); err != nil || !ok {
			fmt.Println(dimStyle.Render("Self-test cancelled"))
			return nil
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	type span struct {
		min, max float64
		steps    int
	}
	seen := make(map[robot.JointName]*span)
	total := 0

	opts := robot.SweepOptions{
		Step:  c.Step,
		Dwell: c.Dwell,
		Report: func(st robot.SweepStep) {
			total++
			for name, pos := range st.Positions {
				sp, ok := seen[name]
				if !ok {
					sp = &span{min: pos, max: pos}
					seen[name] = sp
				}
				sp.min = min(sp.min, pos)
				sp.max = max(sp.max, pos)
				sp.steps++
			}
			s.logger.Debugf("sweep %.1f: %v", st.Angle, st.Positions)
		},
	}

	fmt.Println(headerStyle.Render("MeArm self-test"))
	start := time.Now()
	err = s.ctl.SelfTest(ctx, s.id, opts)

	var rows [][]string
	for _, name := range robot.AllJoints() {
		sp, ok := seen[name]
		if !ok {
			rows = append(rows, []string{string(name), "-", "-", "0"})
			continue
		}
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%.1f", sp.min),
			fmt.Sprintf("%.1f", sp.max),
			fmt.Sprintf("%d", sp.steps),
		})
	}
	fmt.Println(renderTable([]string{"Joint", "Min", "Max", "Steps"}, rows))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d sweep steps in %s", total, time.Since(start).Round(time.Millisecond))))

	if err != nil {
		fmt.Println(warnStyle.Render("Self-test failed"))
		return err
	}
	fmt.Println(successStyle.Render("Self-test passed"))
	return nil
}

type JointCommand struct {
	Args struct {
		Name   string `positional-arg-name:"joint" required:"yes" description:"base, shoulder, wrist or grip"`
		Detail string `positional-arg-name:"detail" description:"pos, min, max, limits or info"`
	} `positional-args:"yes"`
}

func (c *JointCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.ctl.Joint(ctx, c.Args.Name, c.Args.Detail)
	if err != nil {
		return err
	}
	printView(c.Args.Name, v)
	return nil
}

func printView(name string, v control.JointView) {
	pos := formatAngle(v.Pos)
	if v.Idle {
		pos = "idle"
	}
	fmt.Println(renderTable(
		[]string{"Joint", "Pos", "Min", "Max"},
		[][]string{{strings.ToLower(name), pos, formatAngle(v.Min), formatAngle(v.Max)}},
	))
}

type SetCommand struct {
	Pos  *float64 `short:"p" long:"pos" description:"Target angle"`
	Min  *float64 `long:"min" description:"Lower limit"`
	Max  *float64 `long:"max" description:"Upper limit"`
	Args struct {
		Name string `positional-arg-name:"joint" required:"yes" description:"base, shoulder, wrist or grip"`
	} `positional-args:"yes"`
}

func (c *SetCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.ctl.SetJoint(ctx, s.id, c.Args.Name, control.JointUpdate{Pos: c.Pos, Min: c.Min, Max: c.Max})
	if err != nil {
		return err
	}
	printView(c.Args.Name, v)
	return nil
}

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, port := range ports {
		fmt.Println(port)
	}
	return nil
}

type InitCommand struct {
	Force bool `short:"f" long:"force" description:"Overwrite an existing file"`
}

func (c *InitCommand) Execute(args []string) error {
	if robot.ConfigExists(opts.Config) && !c.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite", opts.Config)
	}
	if err := robot.DefaultConfig().SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Configuration written to %s\n", opts.Config)
	return nil
}
