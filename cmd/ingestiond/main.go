// Command ingestiond hosts the video ingestion pipeline: it reads the
// external interface's environment contract, opens the filesystem-backed
// configuration store, and runs the ingest/filter/publish pipeline under
// kardianos/service so it can be installed as a platform service or run
// in the foreground during development.
package main

import (
	"fmt"
	"os"

	"github.com/kardianos/service"

	"github.com/factoryedge/videoingest/internal/ingest/config"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

func main() {
	settings, err := readEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingestiond: "+err.Error())
		os.Exit(1)
	}

	svcConfig := &service.Config{
		Name:        "ingestiond",
		DisplayName: "Video Ingestion Pipeline",
		Description: "Ingests, filters, and publishes frames for " + settings.appName,
	}

	prg := &program{settings: settings}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingestiond: failed to init service: "+err.Error())
		os.Exit(1)
	}

	svcLogger, err := svc.Logger(nil)
	if err != nil {
		svcLogger = nil
	}
	prg.logger = servicelog.New(svcLogger, settings.logLevel, logFilePath(settings))

	store, err := config.NewFSStore(settings.configRoot, prg.logger)
	if err != nil {
		prg.logger.Error("config: failed to open store", servicelog.Error(err))
		servicelog.Sync(prg.logger)
		os.Exit(1)
	}
	prg.store = store

	if err := svc.Run(); err != nil {
		prg.logger.Error("ingestiond: exited with error", servicelog.Error(err))
		prg.setExitCode(1)
	}
	servicelog.Sync(prg.logger)
	os.Exit(prg.ExitCode())
}

func logFilePath(settings envSettings) string {
	if settings.logDir == "" {
		return ""
	}
	return settings.logDir + "/ingestiond.log"
}
