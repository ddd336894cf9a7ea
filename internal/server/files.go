package server

import (
	"bytes"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// fileHandler serves the output directory. HTML pages get the live-reload
// script injected.
func (s *PreviewServer) fileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		root, err := filepath.Abs(s.config.Output)
		if err != nil {
			http.Error(w, "output directory unavailable", http.StatusInternalServerError)

			return
		}

		urlPath := path.Clean("/" + r.URL.Path)
		name := filepath.Join(root, filepath.FromSlash(urlPath))

		info, err := os.Stat(name)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		if info.IsDir() {
			if !strings.HasSuffix(r.URL.Path, "/") {
				http.Redirect(w, r, urlPath+"/", http.StatusMovedPermanently)

				return
			}
			index, ok := findIndex(name)
			if !ok {
				http.NotFound(w, r)

				return
			}
			name = index
		}

		if isHTML(name) {
			s.serveHTML(w, r, name)

			return
		}

		http.ServeFile(w, r, name)
	})
}

// indexFiles are served for directory URLs, in order of preference.
var indexFiles = []string{"index.html", "index.htm"}

func findIndex(dir string) (string, bool) {
	for _, index := range indexFiles {
		name := filepath.Join(dir, index)
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name, true
		}
	}

	return "", false
}

func (s *PreviewServer) serveHTML(w http.ResponseWriter, r *http.Request, name string) {
	content, err := os.ReadFile(name)
	if err != nil {
		s.logger.Warn(r.Context(), err, "reading page", "file", name)
		http.Error(w, "failed to read page", http.StatusInternalServerError)

		return
	}

	body := InjectScript(content)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}

	return false
}

// scriptTag loads the live-reload client.
const scriptTag = `<script src="` + RouteScript + `"></script>`

// InjectScript inserts the live-reload script tag before the last closing
// body tag, matched case-insensitively. Pages without one get the tag
// appended.
func InjectScript(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		out := make([]byte, 0, len(page)+len(scriptTag))
		out = append(out, page...)

		return append(out, scriptTag...)
	}

	out := make([]byte, 0, len(page)+len(scriptTag))
	out = append(out, page[:idx]...)
	out = append(out, scriptTag...)

	return append(out, page[idx:]...)
}

const liveReloadScript = `(function () {
  "use strict";
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var url = proto + "//" + location.host + "` + RouteWebSocket + `";
  var delay = 500;

  function normalize(p) {
    return p.replace(/index\.html?$/, "");
  }

  function connect() {
    var ws = new WebSocket(url);
    ws.onopen = function () { delay = 500; };
    ws.onmessage = function (event) {
      var msg;
      try { msg = JSON.parse(event.data); } catch (e) { return; }
      if (msg.type !== "reload") { return; }
      if (msg.path === "*" || normalize(msg.path) === normalize(location.pathname)) {
        location.reload();
      }
    };
    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 5000);
    };
  }

  connect();
})();
`

func handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(liveReloadScript))
}
