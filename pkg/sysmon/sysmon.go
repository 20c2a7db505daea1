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

package sysmon

import (
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"airmon/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Report is one sample of host and process health.
type Report struct {
	GoVersion  string  `json:"go_version"`
	Uptime     string  `json:"uptime"`
	SoCTempC   float64 `json:"soc_temp_c,omitempty"`
	CPUSystem  float64 `json:"cpu_system_percent"`
	CPUProcess float64 `json:"cpu_process_percent"`
	MemTotal   uint64  `json:"mem_total"`
	MemUsed    uint64  `json:"mem_used"`
	MemFree    uint64  `json:"mem_free"`
	ProcessRSS uint64  `json:"process_rss"`
	Goroutines int     `json:"goroutines"`
	DiskPath   string  `json:"disk_path"`
	DiskTotal  uint64  `json:"disk_total"`
	DiskUsed   uint64  `json:"disk_used"`
	DiskFree   uint64  `json:"disk_free"`
	Extra      any     `json:"extra,omitempty"`
}

type Service struct {
	diskPath string
	extra    func() any
	started  time.Time
	log      *logger.Logger
}

// New reports disk usage for the filesystem holding diskPath. extra, if
// set, is called on every request and included as-is.
func New(diskPath string, extra func() any) *Service {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Service{
		diskPath: diskPath,
		extra:    extra,
		started:  time.Now(),
		log:      logger.New("System Monitor"),
	}
}

func (s *Service) Sample() Report {
	rep := Report{
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		DiskPath:   s.diskPath,
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		rep.CPUSystem = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		rep.MemTotal, rep.MemUsed, rep.MemFree = vmem.Total, vmem.Used, vmem.Available
	}
	if total, free, used, err := DiskUsage(s.diskPath); err == nil {
		rep.DiskTotal, rep.DiskFree, rep.DiskUsed = total, free, used
	} else {
		s.log.Debug("disk usage %s: %v", s.diskPath, err)
	}
	rep.SoCTempC = socTemperature()

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			rep.ProcessRSS = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			rep.CPUProcess = pct
		}
	}
	if s.extra != nil {
		rep.Extra = s.extra()
	}
	return rep
}

// socTemperature returns the first cpu/soc thermal zone, 0 when none is
// exposed.
func socTemperature() float64 {
	temps, _ := host.SensorsTemperatures()
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "soc") {
			return t.Temperature
		}
	}
	return 0
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := s.Sample()

	// JSON API
	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Has("json") {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			s.log.Error("failed to encode report: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTpl.Execute(w, rep); err != nil {
		s.log.Error("failed to render page: %v", err)
	}
}

var pageTpl = template.Must(template.New("sysmon").Funcs(template.FuncMap{
	"gb": func(v uint64) string { return formatUnit(v, 1<<30, "GB") },
	"mb": func(v uint64) string { return formatUnit(v, 1<<20, "MB") },
	"json": func(v any) string {
		b, _ := json.MarshalIndent(v, "", "  ")
		return string(b)
	},
}).Parse(`
<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		h1 { color: #333; }
		table { border-collapse: collapse; width: 60%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>Go {{.GoVersion}}, up {{.Uptime}}, {{.Goroutines}} goroutines{{if .SoCTempC}}, SoC {{printf "%.1f" .SoCTempC}} &deg;C{{end}}</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %</th><th>Process %</th></tr>
		<tr><td>{{printf "%.2f" .CPUSystem}}%</td><td>{{printf "%.2f" .CPUProcess}}%</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>{{gb .MemTotal}}</td><td>{{gb .MemUsed}}</td><td>{{gb .MemFree}}</td><td>{{mb .ProcessRSS}}</td></tr>
	</table>
	<h2>Disk ({{.DiskPath}})</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>{{gb .DiskTotal}}</td><td>{{gb .DiskUsed}}</td><td>{{gb .DiskFree}}</td></tr>
	</table>
	{{if .Extra}}<h2>Event bus</h2><pre>{{json .Extra}}</pre>{{end}}
</body>
</html>
`))
