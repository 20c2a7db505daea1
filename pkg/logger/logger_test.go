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

package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestLevelFiltering(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)
	defer SetLevel(LevelInfo)

	log := New("Test")
	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	log.Error("broken %s", "pipe")

	out := buf.String()
	is.True(!strings.Contains(out, "hidden"))           // debug must be filtered at INFO
	is.True(strings.Contains(out, "[Test] INFO: shown 2")) // info line
	is.True(strings.Contains(out, "logger_test.go"))       // errors carry the caller
}

func TestParseLevel(t *testing.T) {
	is := is.New(t)

	l, err := ParseLevel("debug")
	is.NoErr(err)
	is.Equal(l, LevelDebug)

	l, err = ParseLevel("")
	is.NoErr(err)
	is.Equal(l, LevelInfo)

	_, err = ParseLevel("loud")
	is.True(err != nil)
}

func TestFatalPanics(t *testing.T) {
	is := is.New(t)
	SetOutput(&bytes.Buffer{})

	defer func() {
		r := recover()
		is.Equal(r, "port gone")
	}()
	New("Test").Fatal("port %s", "gone")
}

func TestWebServiceSetsLevel(t *testing.T) {
	is := is.New(t)
	SetOutput(&bytes.Buffer{})
	defer SetLevel(LevelInfo)

	srv := httptest.NewServer(http.StripPrefix("/logger", WebService()))
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.PostForm(srv.URL+"/logger/level", url.Values{"level": {"DEBUG"}})
	is.NoErr(err)
	resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusSeeOther)
	is.True(IsDebug())
}
