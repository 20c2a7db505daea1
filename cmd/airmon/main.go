// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"airmon/internal/climate"
	"airmon/internal/co2"
	"airmon/internal/config"
	"airmon/internal/dashboard"
	"airmon/internal/datalog"
	"airmon/internal/metrics"
	"airmon/internal/monitor"
	"airmon/internal/readings"
	"airmon/internal/ventilation"
	"airmon/pkg/appctx"
	"airmon/pkg/eventbus"
	"airmon/pkg/logger"
	"airmon/pkg/rootserv"
	"airmon/pkg/service"
	"airmon/pkg/sysmon"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logPath := filepath.Join(rootdir, "var/logs/airmon.log")
	confPath := filepath.Join(rootdir, "var/config/airmon.yml")
	if err := logger.Init(logPath); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	appConf := config.LoadFile(confPath)
	fmt.Println(logPath)
	fmt.Println(confPath)

	if lvl, err := logger.ParseLevel(appConf.LogLevel); err == nil && os.Getenv("DEBUG") == "" {
		logger.SetLevel(lvl)
	}
	mainLog := logger.New("Main")

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.DataDir = filepath.Join(rootdir, "var/cache")
	appConf.RootDir = rootdir
	if err := os.MkdirAll(appConf.DataDir, 0755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	ctx, ctxCancel := appctx.New()
	store := readings.NewStore()
	metricsRegistry := metrics.New()

	// sensors: a missing one is logged and skipped, the rest keeps running
	var co2Reader monitor.CO2Reader
	var co2Sensor *co2.Reader
	if appConf.CO2.Serial.Address != "" {
		r, err := co2.Open(ctx, appConf.CO2, store)
		if err != nil {
			log.Fatalf("co2 setup: %v", err)
		}
		co2Reader, co2Sensor = r, r
	} else {
		mainLog.Warn("co2.serial.address not set, CO2 disabled")
	}

	var climateReader monitor.ClimateReader
	if appConf.DHT.Pin != "" {
		r, err := climate.Open(appConf.DHT, store)
		if err != nil {
			log.Fatalf("dht setup: %v", err)
		}
		climateReader = r
	} else {
		mainLog.Warn("dht.pin not set, temperature/humidity disabled")
	}

	// init services
	server := rootserv.New(appConf.HTTPAddr)
	monitorService := monitor.New(co2Reader, climateReader, store, metricsRegistry, appConf)
	dashboardService := dashboard.New(store, monitorService, appConf.EventBus)
	dataLoggerService := datalog.New(store, appConf)
	sysMonitorService := sysmon.New(appConf.DataDir, func() any {
		return appConf.EventBus.Stats()
	})

	runnables := []service.Runnable{
		monitorService,
		dashboardService,
		dataLoggerService,
	}

	ventController, err := ventilation.Open(appConf, metricsRegistry)
	if err != nil {
		log.Fatalf("ventilation setup: %v", err)
	}
	if ventController != nil {
		runnables = append(runnables, ventController)
		server.Attach("/ventilation", "Ventilation Fan", ventController)
	}

	// attach web handler enabled services
	server.Attach("/", "Dashboard", dashboardService)
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/system", "System Monitor", sysMonitorService)
	server.Attach("/metrics", "Prometheus Metrics", metricsRegistry)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, append(runnables, server))

	// waits for all services to stop
	code := <-exitCh
	if co2Sensor != nil {
		co2Sensor.Close()
	}
	appConf.EventBus.Close()
	logger.Close()
	os.Exit(code)
}
