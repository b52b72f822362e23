//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/nestybox/kconreg/ctl"
	"github.com/nestybox/kconreg/ctl/implementations"
	"github.com/nestybox/kconreg/ctlproto"
	"github.com/nestybox/kconreg/domain"
	"github.com/nestybox/kconreg/kcont"
	"github.com/nestybox/kconreg/region"
	"github.com/nestybox/kconreg/session"
	"github.com/nestybox/kconreg/vars"
)

const usage string = `kcontd - KCONT shared-memory registry daemon

kcontd owns the id-addressed registry of page-backed shared memory
regions described in the control protocol's KCONT service. Clients
connect to its control socket, CREATE/GET_FD/INFO/DESTROY regions, and
receive descriptors via SCM_RIGHTS.
`

var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

func exitHandler(signalChan chan os.Signal, srv *ctl.Server, prof interface{ Stop() }) {
	s := <-signalChan
	logrus.Warnf("kcontd caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	if s == syscall.SIGSEGV || s == syscall.SIGABRT || s == syscall.SIGQUIT {
		stacktrace := make([]byte, 32768)
		length := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:length]))
	}

	srv.Close()

	if prof != nil {
		prof.Stop()
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	cpuOn := ctx.Bool("cpu-profiling")
	memOn := ctx.Bool("memory-profiling")
	if cpuOn && memOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !cpuOn && !memOn {
		return nil, nil
	}
	if cpuOn {
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	}
	return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
}

func main() {
	app := cli.NewApp()
	app.Name = "kcontd"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Value: "/run/kconreg/kcont.sock",
			Usage: "control-socket path (substitute for the KCONT ioctl device node)",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("kcontd\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("error opening log file %v: %v", path, err)
				return err
			}
			logrus.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
		}

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level %q not recognized", ctx.GlobalString("log-level"))
		}
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating kcontd ...")

		kcontReg := kcont.NewRegistry(region.NewFactory())
		varsReg := vars.NewRegistry() // unused by KCONT, but sessions need a VarsRegistryIface to construct
		sessions := session.NewManager(varsReg)

		handlers := []domain.OpHandlerIface{
			implementations.Create_Handler,
			implementations.GetFd_Handler,
			implementations.Destroy_Handler,
			implementations.ForceDestroy_Handler,
			implementations.Info_Handler,
		}
		for _, h := range handlers {
			h.Bind(kcontReg, varsReg, region.NewFactory())
		}

		dispatch := ctl.NewDispatchService()
		dispatch.Setup(handlers)

		srv := ctl.NewServer(ctlproto.MagicKcont, ctx.GlobalString("socket"), dispatch, sessions)
		if err := srv.Listen(); err != nil {
			return fmt.Errorf("failed to listen on control socket: %v", err)
		}

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, srv, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("Ready ...")

		return srv.Serve()
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
