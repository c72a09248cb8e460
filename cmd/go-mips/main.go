package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/kmeister/go-mips/mips/asm"
	"github.com/kmeister/go-mips/mips/debug"
	"github.com/kmeister/go-mips/mips/program"
	"github.com/kmeister/go-mips/mips/syscall"
)

func main() {
	app := cli.NewApp()
	app.Name = "go-mips"
	app.Description = "A MIPS32 assembler, emulator and debugger"
	app.Usage = "go-mips <command> [options] <file>"
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		{
			Name:      "build",
			Usage:     "Assemble a source file into a program image",
			ArgsUsage: "<source file>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "o",
					Usage: "Output path for the assembled image",
				},
			},
			Action: runBuild,
		},
		{
			Name:      "run",
			Usage:     "Assemble (or load) a program and run it to completion",
			ArgsUsage: "<source or image file>",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "max-instructions",
					Usage: "Stop after this many instructions (0 = unlimited)",
				},
				cli.BoolFlag{
					Name:  "delay-slots",
					Usage: "Enable architectural branch delay slots",
				},
			},
			Action: runProgram,
		},
		{
			Name:      "debug",
			Usage:     "Run a program under the interactive debugger",
			ArgsUsage: "<source or image file>",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "tui",
					Usage: "Use the full-screen terminal interface",
				},
				cli.BoolFlag{
					Name:  "delay-slots",
					Usage: "Enable architectural branch delay slots",
				},
				cli.IntFlag{
					Name:  "history",
					Usage: "Reverse-stepping history depth",
					Value: debug.DefaultHistoryCapacity,
				},
			},
			Action: runDebugger,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("go-mips failed", "error", err)
		os.Exit(1)
	}
}

// loadImage assembles a .s/.asm source or loads a previously built
// image, keyed on the file extension.
func loadImage(path string) (*program.Image, error) {
	if strings.HasSuffix(path, ".s") || strings.HasSuffix(path, ".asm") {
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		img, diags := asm.Assemble(path, source)
		for _, d := range diags {
			fmt.Fprintln(os.Stderr, d.Error())
		}
		if img == nil {
			return nil, fmt.Errorf("assembly of %s failed", path)
		}
		return img, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return program.Load(file)
}

func argumentPath(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		cli.ShowSubcommandHelp(c)
		return "", errors.New("no input file provided")
	}
	return c.Args().First(), nil
}

func runBuild(c *cli.Context) error {
	path, err := argumentPath(c)
	if err != nil {
		return err
	}

	img, err := loadImage(path)
	if err != nil {
		return err
	}

	out := c.String("o")
	if out == "" {
		out = strings.TrimSuffix(path, ".s") + ".img"
	}
	file, err := os.Create(out)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := img.Save(file); err != nil {
		return err
	}
	slog.Info("assembled", "source", path, "image", out, "entry", fmt.Sprintf("%#08x", img.Entry))
	return nil
}

func runProgram(c *cli.Context) error {
	path, err := argumentPath(c)
	if err != nil {
		return err
	}
	img, err := loadImage(path)
	if err != nil {
		return err
	}

	console := syscall.NewConsole(os.Stdin, os.Stdout, consoleOptions()...)
	session := debug.Load(img,
		debug.WithHandler(console),
		debug.WithDelayedBranching(c.Bool("delay-slots")),
	)

	outcome := session.Run(debug.Budget{MaxInstructions: c.Uint64("max-instructions")})
	switch outcome.Kind {
	case debug.OutcomeHalted:
		if outcome.Status != 0 {
			os.Exit(int(outcome.Status))
		}
		return nil
	case debug.OutcomeFaulted:
		return describeFault(img, outcome)
	default:
		return fmt.Errorf("execution paused (%s) after budget at pc %#08x", outcome.Reason, outcome.PC)
	}
}

// consoleOptions enables raw-mode single-keystroke reads for the
// read-character syscall when stdin is an interactive terminal.
func consoleOptions() []syscall.ConsoleOption {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return []syscall.ConsoleOption{syscall.WithRawInput(fd)}
}

// describeFault renders an execution fault with the source position from
// the line map when one exists.
func describeFault(img *program.Image, outcome debug.Outcome) error {
	fault := outcome.Fault
	if entry, ok := img.LineForAddress(fault.PC); ok {
		return fmt.Errorf("fault at %#08x (%s:%d): %s", fault.PC, entry.File, entry.Line, fault.Kind)
	}
	return fmt.Errorf("fault at %#08x: %s", fault.PC, fault.Kind)
}

func runDebugger(c *cli.Context) error {
	path, err := argumentPath(c)
	if err != nil {
		return err
	}
	img, err := loadImage(path)
	if err != nil {
		return err
	}

	options := []debug.Option{
		debug.WithDelayedBranching(c.Bool("delay-slots")),
		debug.WithHistoryCapacity(c.Int("history")),
	}

	if c.Bool("tui") {
		return runTUI(img, options)
	}

	console := syscall.NewConsole(os.Stdin, os.Stdout, consoleOptions()...)
	session := debug.Load(img, append(options, debug.WithHandler(console))...)
	return runREPL(session)
}
