// Command rtmpbroker runs the RTMP live-streaming broker: it accepts
// publisher and subscriber connections and fans out published media to
// every subscriber of the same stream key. Grounded on the teacher's
// main.go, expanded to wire the config/cluster/control components
// SPEC_FULL.md adds around the core session/registry/dispatch pipeline.
package main

import (
	"context"

	"github.com/nullkey-live/rtmpbroker/internal/cluster"
	"github.com/nullkey-live/rtmpbroker/internal/command"
	"github.com/nullkey-live/rtmpbroker/internal/config"
	"github.com/nullkey-live/rtmpbroker/internal/control"
	"github.com/nullkey-live/rtmpbroker/internal/dispatch"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/media"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
	"github.com/nullkey-live/rtmpbroker/internal/transport"
)

func main() {
	logging.Info("RTMP broker starting")

	cfg := config.Load()
	log := logging.StdLogger{}
	reg := registry.New()

	coord := cluster.New(cfg, reg, log)
	coord.Start()

	cmdHandler := command.NewHandler(reg, log)
	cmdHandler.Notifier = coord

	medHandler := media.NewHandler(reg, log)
	medHandler.Notifier = coord
	d := dispatch.New(cmdHandler, medHandler, log)

	if l := control.NewListener(cfg, reg, log); l != nil {
		go l.Run(context.Background())
	}

	srv := transport.New(cfg, reg, cmdHandler, d, log)
	if err := srv.ListenAndServe(); err != nil {
		logging.Error(err)
	}
}
