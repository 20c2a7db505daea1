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
	"bufio"
	"html/template"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Service is the /logger page: tail of the log file plus level controls.
type Service struct {
	mu    sync.Mutex
	lines int
}

func WebService() *Service {
	return &Service{lines: 250}
}

var levels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/level":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		lvl, err := ParseLevel(r.FormValue("level"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		SetLevel(lvl)
		http.Redirect(w, r, "/logger", http.StatusSeeOther)

	case "/clear":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.clearLog(); err != nil {
			http.Error(w, "failed to clear log: "+err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/logger", http.StatusSeeOther)

	default:
		s.renderPage(w)
	}
}

var pageTpl = template.Must(template.New("page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>airmon log</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 2em; background: #f9f9f9; color: #333; }
    .btn { display:inline-block; padding:0.5em 1em; margin:0.2em; font-size:0.9em;
           background:#007bff; color:white; border:none; border-radius:4px; cursor:pointer; }
    .btn-danger { background:#dc3545; }
    .active { background:#28a745; }
    pre.log { background:#222; color:#eee; padding:1em; border-radius:6px; max-height:500px; overflow:auto; }
  </style>
</head>
<body>
  <h1>Logger</h1>
  <form method="POST" action="/logger/level" style="display:inline;">
    {{range .Levels}}<button class="btn{{if eq . $.Level}} active{{end}}" name="level" value="{{.}}" type="submit">{{.}}</button>{{end}}
  </form>
  <form method="POST" action="/logger/clear" style="display:inline;">
    <button class="btn btn-danger" type="submit">Clear Log</button>
  </form>
  <h2>Last {{.Lines}} log lines</h2>
  <pre class="log">{{.Log}}</pre>
</body>
</html>
`))

func (s *Service) renderPage(w http.ResponseWriter) {
	logs, _ := s.tail(s.lines)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pageTpl.Execute(w, map[string]any{
		"Levels": levels,
		"Level":  CurrentLevel(),
		"Lines":  s.lines,
		"Log":    logs,
	})
}

// clearLog truncates the log file in place; the append-mode handle keeps working.
func (s *Service) clearLog() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu.RLock()
	f := logFile
	mu.RUnlock()
	if f == nil {
		return nil
	}
	return os.Truncate(f.Name(), 0)
}

func (s *Service) tail(n int) (string, error) {
	mu.RLock()
	f := logFile
	mu.RUnlock()
	if f == nil {
		return "", nil
	}
	rf, err := os.Open(f.Name())
	if err != nil {
		return "", err
	}
	defer rf.Close()

	var lines []string
	sc := bufio.NewScanner(rf)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n"), sc.Err()
}
