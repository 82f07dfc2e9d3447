package main

import (
	"strings"

	"github.com/factoryedge/videoingest/internal/ingest/bus"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

// newBusFactory builds the supervisor.BusFactory for this process: the
// `<TOPIC>_cfg` env hint names an HTTP endpoint when it looks like one;
// otherwise (dev_mode, or no bus SDK configured) an in-process channel bus
// is used, since no concrete message-bus client ships in this module's
// dependency stack. clients is the opaque subscriber-identity list the
// external interface passes through to "the bus config builder" without
// this process interpreting it further.
func newBusFactory(cfg string, devMode bool, clients []string, logger servicelog.Logger) func(topic string) (bus.Bus, error) {
	return func(topic string) (bus.Bus, error) {
		if !devMode && (strings.HasPrefix(cfg, "http://") || strings.HasPrefix(cfg, "https://")) {
			logger.Info("bus: publishing over HTTP",
				servicelog.String("topic", topic),
				servicelog.String("url", cfg),
				servicelog.String("clients", strings.Join(clients, ",")))
			return bus.NewHTTPBus(cfg, logger), nil
		}
		logger.Info("bus: publishing to an in-process channel bus",
			servicelog.String("topic", topic),
			servicelog.Bool("dev_mode", devMode))
		return bus.NewChannelBus(64), nil
	}
}
