package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/ghettovoice/softphone/dns"
	"github.com/ghettovoice/softphone/engine/sipua"
	"github.com/ghettovoice/softphone/phone"
	"github.com/ghettovoice/softphone/platform"
	"github.com/ghettovoice/softphone/tone"
)

func (a *app) run(ctx context.Context, cmd *cli.Command) error {
	mgr, closeStore, err := a.sessions(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sess, err := mgr.Current(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return cli.Exit("not provisioned, run `softphone provision` first", 1)
	}

	toneOut := io.Discard
	if path := cmd.String("tone-out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		toneOut = f
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.cfg.MetricsAddr != "" {
		stopMetrics := a.serveMetrics(reg)
		defer stopMetrics()
	}

	watcher := platform.NewNetWatcher(&platform.NetWatcherOptions{Interval: a.cfg.NetPoll, Log: a.log})
	defer watcher.Close()
	host := platform.NewProcessHost(&platform.ProcessHostOptions{GrantDuration: a.cfg.GrantTime, Log: a.log})
	defer host.Close()

	eng := sipua.New(&sipua.Options{
		ListenAddr: a.cfg.SIP.ListenAddr,
		UserAgent:  a.cfg.SIP.UserAgent,
		Log:        a.log,
	})

	opts := a.cfg.PhoneOptions()
	opts.Resolver = dns.NewCache(nil, &dns.CacheOptions{Log: a.log})
	opts.Metrics = reg
	opts.Log = a.log

	ph, err := phone.New(eng, watcher, host, tone.NewPlayer(toneOut, &tone.PlayerOptions{Log: a.log}), opts)
	if err != nil {
		return err
	}
	defer ph.Close()

	con := newConsole(ph, host, a.out)
	defer con.Close()

	if err := ph.Register(ctx, sess.User); err != nil {
		return err
	}
	return con.Run(ctx, a.in)
}

func (a *app) serveMetrics(reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.LogAttrs(context.Background(), slog.LevelError, "metrics server failed", slog.Any("error", err))
		}
	}()
	a.log.LogAttrs(context.Background(), slog.LevelInfo, "serving metrics", slog.String("addr", fmt.Sprintf("http://%s/metrics", a.cfg.MetricsAddr)))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
