// Command pce runs a PCEP (RFC 5440) server (PCE) or client (PCC), the
// Go-idiomatic realization of the reference pce/pce_server/pce_client
// applications.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nwaples/pcep"
	"github.com/nwaples/pcep/internal/pcelog"
	"github.com/nwaples/pcep/internal/pidfile"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
)

const (
	defaultPort    = "4189"
	defaultPidfile = "/var/run/pce.pid"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "1.1"

func main() {
	app := cli.NewApp()
	app.Name = "pce"
	app.Usage = "PCEP (RFC 5440) PCE server and PCC client"
	app.Version = VERSION
	app.Commands = []cli.Command{
		serverCommand,
		clientCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var serverCommand = cli.Command{
	Name:  "server",
	Usage: "run pce server (PCE)",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr, a", Usage: "PCE server address"},
		cli.StringFlag{Name: "port, p", Value: defaultPort, Usage: "PCE server port"},
		cli.StringFlag{Name: "pidfile", Value: defaultPidfile, Usage: "PCE server pidfile path"},
		cli.StringFlag{Name: "metrics", Usage: "address to serve Prometheus metrics on, e.g. :9189 (disabled if empty)"},
		cli.BoolFlag{Name: "debug, d", Usage: "PCE server debug mode"},
	},
	Action: runServer,
}

var clientCommand = cli.Command{
	Name:  "client",
	Usage: "run pce client (PCC)",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr, a", Value: "localhost", Usage: "PCE server address/hostname"},
		cli.StringFlag{Name: "port, p", Value: defaultPort, Usage: "PCE server port/service"},
		cli.BoolFlag{Name: "script", Usage: "play back the fixed Open/Keepalive/Close dummy session instead of running the full session handler"},
		cli.BoolFlag{Name: "debug, d", Usage: "PCE client debug mode"},
	},
	Action: runClient,
}

func runServer(c *cli.Context) error {
	debug := c.Bool("debug")
	if err := pcelog.Open(debug); err != nil {
		return errors.Wrap(err, "pce: open log")
	}
	defer pcelog.Close()

	pidPath := c.String("pidfile")
	if !debug {
		if pid, err := pidfile.Check(pidPath); err != nil {
			return errors.Wrap(err, "pce: check pidfile")
		} else if pid != 0 {
			return errors.Errorf("pce: server already running as pid %d", pid)
		}
	}

	pf, err := pidfile.Create(pidPath)
	if err != nil {
		return errors.Wrap(err, "pce: create pidfile")
	}
	defer func() {
		pf.Close()
		pidfile.Delete(pidPath)
	}()

	addr := net.JoinHostPort(c.String("addr"), c.String("port"))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "pce: listen")
	}
	pcelog.Info("starting PCE server on ", addr)

	stats := pcep.NewStatsCollector()

	if metricsAddr := c.String("metrics"); metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(stats)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				pcelog.Err("metrics server: ", err)
			}
		}()
	}

	cfg := pcep.DefaultSessionConfig()
	cfg.Log = pcelog.Debug
	handler := &pcep.ConnHandler{
		Config: cfg,
		Stats:  stats,
	}
	srv := &pcep.Server{
		ServeConn: handler.ServeConn,
		Log:       pcelog.Err,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	err = srv.Serve(l)
	select {
	case <-ctx.Done():
		pcelog.Info("closing PCE server")
		return nil
	default:
		return err
	}
}

func runClient(c *cli.Context) error {
	debug := c.Bool("debug")
	if err := pcelog.Open(debug); err != nil {
		return errors.Wrap(err, "pce: open log")
	}
	defer pcelog.Close()

	addr := net.JoinHostPort(c.String("addr"), c.String("port"))
	client := &pcep.Client{Addr: addr}

	pcelog.Debug("starting PCE client ...")
	defer pcelog.Debug("closing PCE client ...")

	ctx := context.Background()
	if c.Bool("script") {
		return client.RunScripted(ctx)
	}
	return client.Run(ctx, pcep.DefaultSessionConfig(), nil)
}
