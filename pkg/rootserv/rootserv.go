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

package rootserv

import (
	"airmon/pkg/logger"
	"context"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"
)

const shutdownTimeout = 5 * time.Second

type subserver struct {
	Path string
	Desc string
}

// RootServer holds a mux and the list of attached sub-handlers.
type RootServer struct {
	log        *logger.Logger
	addr       string
	mux        *http.ServeMux
	subservers map[string]string // path -> description
	mainPage   http.Handler      // optional subserver for '/'
}

func New(addr string) *RootServer {
	return &RootServer{
		addr:       addr,
		mux:        http.NewServeMux(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
}

// Attach registers handler under path with the prefix stripped.
// If path == "/", it becomes the main page and handles every path no
// subserver claims.
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	ms.log.Info("Attach: %s", path)

	if path == "/" {
		ms.mainPage = handler
		return
	}

	path = "/" + strings.Trim(path, "/")
	ms.subservers[path] = desc

	// exact path without the slash serves the subserver's own root
	ms.mux.Handle(path+"/", http.StripPrefix(path, handler))
	ms.mux.Handle(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently))
}

var indexTpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>airmon</title></head><body>
<h1>airmon services</h1>
<ul>
{{range .}}<li><a href="{{.Path}}/">{{.Path}}</a> - {{.Desc}}</li>
{{end}}</ul>
</body></html>
`))

func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	list := make([]subserver, 0, len(ms.subservers))
	for path, desc := range ms.subservers {
		list = append(list, subserver{Path: path, Desc: desc})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTpl.Execute(w, list); err != nil {
		ms.log.Error("index: %v", err)
	}
}

// Handler finalizes the mux. Attach must not be called afterwards.
func (ms *RootServer) Handler() http.Handler {
	ms.mux.HandleFunc("/index", ms.handleIndex)

	// '/' catches everything no subserver registered
	ms.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if ms.mainPage != nil {
			ms.mainPage.ServeHTTP(w, r)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
	})
	return ms.mux
}

// Run starts serving and blocks until the context is canceled.
func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("Running... (%s)", ms.addr)

	srv := &http.Server{
		Addr:              ms.addr,
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ms.log.Error("shutdown: %v", err)
		}
		ms.log.Info("Stopped")
	case err := <-errCh:
		ms.log.Fatal("listen %s: %v", ms.addr, err)
	}
}
