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

package monitor

import (
	"airmon/internal/climate"
	"airmon/internal/co2"
	"airmon/internal/config"
	"airmon/internal/events"
	"airmon/internal/readings"
	"airmon/pkg/eventbus"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

type fakeSensor struct {
	ppm int
	err error
}

func (f *fakeSensor) Measure(context.Context) (int, error) { return f.ppm, f.err }

type fakeDriver struct{ t, h float64 }

func (f *fakeDriver) ReadTemperature() float64 { return f.t }
func (f *fakeDriver) ReadHumidity() float64    { return f.h }

type fakeRecorder struct {
	mu    sync.Mutex
	reads map[string][]string
	snaps int
}

func (r *fakeRecorder) ObserveRead(sensor, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reads == nil {
		r.reads = make(map[string][]string)
	}
	r.reads[sensor] = append(r.reads[sensor], status)
}

func (r *fakeRecorder) ObserveSnapshot(readings.Snapshot) {
	r.mu.Lock()
	r.snaps++
	r.mu.Unlock()
}

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	conf, err := config.Parse([]byte("monitor:\n  poll_interval_seconds: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	conf.EventBus = eventbus.New()
	conf.DataDir = dataDir
	return conf
}

func TestPollOnceUpdatesStoreAndPublishes(t *testing.T) {
	is := is.New(t)
	conf := testConfig(t, "")
	store := readings.NewStore()
	rec := &fakeRecorder{}

	sensor := &fakeSensor{ppm: 300}
	driver := &fakeDriver{t: 21.5, h: 40.0}
	svc := New(co2.NewReader(sensor, store), climate.NewReader(driver, store), store, rec, conf)

	sub, unsub := conf.EventBus.Subscribe(context.Background(), events.TopicReadings, false)
	defer unsub()

	svc.pollOnce(context.Background())

	ev := (<-sub).(events.ReadingsUpdate)
	is.Equal(ev.Cycle, uint64(1))
	is.Equal(ev.CO2PPM, 300)
	is.Equal(ev.TemperatureC, 21.5)
	is.Equal(ev.HumidityPct, 40.0)

	is.Equal(rec.reads[SeriesCO2], []string{"ok"})
	is.Equal(rec.reads[SeriesTemperature], []string{"ok"})
	is.Equal(rec.snaps, 1)
	is.Equal(len(svc.History(SeriesCO2)), 1)
}

func TestPollOnceKeepsValuesOnFailure(t *testing.T) {
	is := is.New(t)
	conf := testConfig(t, "")
	store := readings.NewStore()
	rec := &fakeRecorder{}

	sensor := &fakeSensor{ppm: 500}
	driver := &fakeDriver{t: 21.5, h: 40.0}
	svc := New(co2.NewReader(sensor, store), climate.NewReader(driver, store), store, rec, conf)
	svc.pollOnce(context.Background())

	sensor.err = co2.ErrTimeout
	driver.t = math.NaN()
	driver.h = 42.3
	svc.pollOnce(context.Background())

	snap := store.Snapshot()
	is.Equal(snap.CO2PPM, 500)
	is.Equal(snap.TemperatureC, 21.5)
	is.Equal(snap.HumidityPct, 42.3)

	is.Equal(rec.reads[SeriesCO2], []string{"ok", "timeout"})
	is.Equal(rec.reads[SeriesTemperature], []string{"ok", "nan"})
	is.Equal(len(svc.History(SeriesCO2)), 1)      // failed read not recorded
	is.Equal(len(svc.History(SeriesHumidity)), 2) // humidity updated both times
	is.Equal(svc.Cycle(), uint64(2))
}

func TestPollOnceWithoutSensors(t *testing.T) {
	is := is.New(t)
	conf := testConfig(t, "")
	svc := New(nil, nil, readings.NewStore(), nil, conf)

	svc.pollOnce(context.Background())

	last, ok := conf.EventBus.GetLast(events.TopicReadings)
	is.True(ok)
	is.Equal(last.(events.ReadingsUpdate).CO2PPM, 0)
}

func TestTrimBefore(t *testing.T) {
	is := is.New(t)
	now := time.Now()
	entries := []HistoryEntry{
		{Timestamp: now.Add(-25 * time.Hour), Value: 1},
		{Timestamp: now.Add(-24*time.Hour - time.Second), Value: 2},
		{Timestamp: now.Add(-time.Hour), Value: 3},
		{Timestamp: now, Value: 4},
	}

	kept := trimBefore(entries, now.Add(-24*time.Hour))
	is.Equal(len(kept), 2)
	is.Equal(kept[0].Value, 3.0)

	is.Equal(len(trimBefore(kept, now.Add(-48*time.Hour))), 2)
}

func TestSummarize(t *testing.T) {
	is := is.New(t)
	svc := New(nil, nil, readings.NewStore(), nil, testConfig(t, ""))

	_, err := svc.Summarize(SeriesCO2, time.Hour)
	is.True(err != nil)

	for _, v := range []float64{400, 800, 600, 1000} {
		svc.record(SeriesCO2, v)
	}
	sum, err := svc.Summarize(SeriesCO2, time.Hour)
	is.NoErr(err)
	is.Equal(sum.Count, 4)
	is.Equal(sum.Min, 400.0)
	is.Equal(sum.Max, 1000.0)
	is.Equal(sum.Mean, 700.0)
	is.Equal(sum.Median, 700.0)
}

func TestSnapshotRoundTrip(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	svc := New(nil, nil, readings.NewStore(), nil, testConfig(t, dir))
	svc.record(SeriesCO2, 612)
	svc.record(SeriesTemperature, 20.25)
	svc.saveToDisk()

	_, err := os.Stat(filepath.Join(dir, snapshotFilename))
	is.NoErr(err)
	_, err = os.Stat(filepath.Join(dir, snapshotFilename+".tmp"))
	is.True(errors.Is(err, os.ErrNotExist)) // temp file renamed away

	restored := New(nil, nil, readings.NewStore(), nil, testConfig(t, dir))
	co2Hist := restored.History(SeriesCO2)
	is.Equal(len(co2Hist), 1)
	is.Equal(co2Hist[0].Value, 612.0)
	is.Equal(restored.History(SeriesTemperature)[0].Value, 20.25)
}

func TestRunStopsAndSaves(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	conf := testConfig(t, dir)
	store := readings.NewStore()
	svc := New(co2.NewReader(&fakeSensor{ppm: 450}, store), nil, store, nil, conf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for svc.Cycle() == 0 {
		select {
		case <-deadline:
			t.Fatal("no poll cycle ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	is.Equal(store.CO2(), 450)
	_, err := os.Stat(filepath.Join(dir, snapshotFilename))
	is.NoErr(err)
}
