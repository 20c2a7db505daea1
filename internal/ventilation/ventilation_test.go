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

package ventilation

import (
	"airmon/internal/config"
	"airmon/internal/events"
	"airmon/internal/readings"
	"airmon/pkg/eventbus"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type recordingObserver struct{ states []bool }

func (r *recordingObserver) SetFan(on bool) { r.states = append(r.states, on) }

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func testConf() config.VentilationConfig {
	return config.VentilationConfig{
		OnPPM:             1000,
		OffPPM:            800,
		MinOnSeconds:      120,
		MinOffSeconds:     60,
		StaleAfterSeconds: 300,
	}
}

func newTestController(t *testing.T) (*Controller, *[]bool, *recordingObserver, *fakeClock) {
	t.Helper()
	var calls []bool
	obs := &recordingObserver{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(testConf(), eventbus.New(), func(on bool) error {
		calls = append(calls, on)
		return nil
	}, obs)
	c.now = clock.now
	return c, &calls, obs, clock
}

func (c *Controller) feed(ppm int, at time.Time) {
	c.mu.Lock()
	c.last = readings.Snapshot{CO2PPM: ppm, CO2At: at}
	c.mu.Unlock()
	c.evaluate()
}

func TestHysteresis(t *testing.T) {
	is := is.New(t)
	c, calls, obs, clock := newTestController(t)

	c.feed(950, clock.t)
	is.Equal(len(*calls), 0) // between thresholds, stays off

	c.feed(1000, clock.t)
	is.Equal(*calls, []bool{true})

	clock.advance(5 * time.Minute)
	c.feed(900, clock.t)
	is.True(c.State().FanOn) // between thresholds, stays on

	c.feed(800, clock.t)
	is.Equal(*calls, []bool{true, false})
	is.Equal(obs.states, []bool{true, false})
}

func TestMinimumOnTime(t *testing.T) {
	is := is.New(t)
	c, calls, _, clock := newTestController(t)

	c.feed(1200, clock.t)
	clock.advance(time.Minute)
	c.feed(700, clock.t)
	is.Equal(*calls, []bool{true}) // min on is 2 minutes

	clock.advance(time.Minute)
	c.feed(700, clock.t)
	is.Equal(*calls, []bool{true, false})
}

func TestMinimumOffTime(t *testing.T) {
	is := is.New(t)
	c, calls, _, clock := newTestController(t)

	c.feed(1200, clock.t)
	clock.advance(3 * time.Minute)
	c.feed(600, clock.t)
	clock.advance(30 * time.Second)
	c.feed(1500, clock.t)
	is.Equal(*calls, []bool{true, false}) // min off is 1 minute

	clock.advance(30 * time.Second)
	c.feed(1500, clock.t)
	is.Equal(*calls, []bool{true, false, true})
}

func TestStaleReadingTurnsFanOff(t *testing.T) {
	is := is.New(t)
	c, calls, _, clock := newTestController(t)

	c.feed(1500, clock.t)
	clock.advance(6 * time.Minute)
	c.evaluate()

	is.Equal(*calls, []bool{true, false})
	is.True(c.State().Stale)
}

func TestNeverReadKeepsFanOff(t *testing.T) {
	is := is.New(t)
	c, calls, _, _ := newTestController(t)

	c.feed(1500, time.Time{})
	is.Equal(len(*calls), 0)
}

func TestActuatorErrorRetries(t *testing.T) {
	is := is.New(t)
	fail := true
	var calls int
	c := New(testConf(), eventbus.New(), func(on bool) error {
		calls++
		if fail {
			return errors.New("relay stuck")
		}
		return nil
	}, nil)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.feed(1500, now)
	is.True(!c.State().FanOn)

	fail = false
	c.feed(1500, now)
	is.True(c.State().FanOn)
	is.Equal(calls, 2)
}

func TestPinActuator(t *testing.T) {
	is := is.New(t)

	pin := &gpiotest.Pin{N: "GPIO17", Num: 17}
	act, err := PinActuator(pin, false)
	is.NoErr(err)
	is.Equal(pin.Read(), gpio.Low)
	is.NoErr(act(true))
	is.Equal(pin.Read(), gpio.High)

	inverted := &gpiotest.Pin{N: "GPIO27", Num: 27}
	act, err = PinActuator(inverted, true)
	is.NoErr(err)
	is.Equal(inverted.Read(), gpio.High) // off on an active-low relay
	is.NoErr(act(true))
	is.Equal(inverted.Read(), gpio.Low)
}

func TestRunFollowsBusAndSwitchesOffOnStop(t *testing.T) {
	is := is.New(t)
	bus := eventbus.New()
	states := make(chan bool, 4)
	c := New(testConf(), bus, func(on bool) error {
		states <- on
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	bus.Publish(events.TopicReadings, events.ReadingsUpdate{
		Snapshot: readings.Snapshot{CO2PPM: 1400, CO2At: time.Now()},
	})
	select {
	case on := <-states:
		is.True(on)
	case <-time.After(time.Second):
		t.Fatal("fan not switched on")
	}

	cancel()
	<-done
	is.Equal(<-states, false) // forced off despite minimum on time
}

func TestServeState(t *testing.T) {
	is := is.New(t)
	c, _, _, clock := newTestController(t)
	c.feed(1100, clock.t)

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var st State
	is.NoErr(json.NewDecoder(rec.Body).Decode(&st))
	is.True(st.FanOn)
	is.Equal(st.CO2PPM, 1100)
	is.Equal(st.OnPPM, 1000)
}

func TestOpenWithoutFanPin(t *testing.T) {
	is := is.New(t)
	c, err := Open(&config.Config{}, nil)
	is.NoErr(err)
	is.True(c == nil)
}
