// Command modulehostctl is a demo harness around the module host kernel:
// it wires a trivial standalone time controller, two synchronous demo
// modules and one parallel demo module, and drives N frames behind a
// progress bar, then prints one stats snapshot for the whole run (no
// per-frame stats are printed). It opens no network listener --
// the core has no protocol of its own.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/demo"
	"github.com/pjanec/modulehost/internal/diag"
	"github.com/pjanec/modulehost/internal/hostconfig"
)

func main() {
	app := cli.NewApp()
	app.Name = "modulehostctl"
	app.Usage = "drive the module host kernel for N frames"
	app.Commands = []cli.Command{
		runCmd,
		statsCmd,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var framesFlag = cli.IntFlag{Name: "frames", Value: 120, Usage: "number of frames to run"}
var entitiesFlag = cli.IntFlag{Name: "entities", Value: 64, Usage: "number of demo entities to spawn"}
var auditFlag = cli.StringFlag{Name: "audit", Usage: "write a MessagePack command-playback audit trail to this file"}

var runCmd = cli.Command{
	Name:  "run",
	Usage: "run the demo simulation for --frames frames",
	Flags: []cli.Flag{framesFlag, entitiesFlag, auditFlag},
	Action: func(c *cli.Context) error {
		frames := c.Int("frames")
		entities := c.Int("entities")

		stats := diag.NewStats(prometheus.NewRegistry())
		sim, err := demo.NewSimulation(hostconfig.New(), stats)
		if err != nil {
			return err
		}
		sim.Spawn(entities)

		if path := c.String("audit"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			sim.Kernel.SetAuditTrail(cmdbuf.NewAuditWriter(f))
			defer sim.Kernel.Cleanup()
		}

		progress := mpb.New(mpb.WithWidth(48))
		bar := progress.AddBar(int64(frames),
			mpb.PrependDecorators(decor.Name("frame ")),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
		)
		for i := 0; i < frames; i++ {
			sim.Kernel.StepStandalone()
			bar.Increment()
		}
		progress.Wait()

		snap := stats.Snapshot()
		out, _ := snap.JSON()
		fmt.Println(string(out))
		return nil
	},
}

var statsCmd = cli.Command{
	Name:  "stats",
	Usage: "run one frame and dump the observability snapshot as JSON",
	Action: func(c *cli.Context) error {
		stats := diag.NewStats(prometheus.NewRegistry())
		sim, err := demo.NewSimulation(hostconfig.New(), stats)
		if err != nil {
			return err
		}
		sim.Spawn(8)
		sim.Kernel.StepStandalone()
		snap := stats.Snapshot()
		out, err := snap.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
