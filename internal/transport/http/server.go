// Package transporthttp is the demo transport from SPEC_FULL.md §E: a thin
// HTTP surface over internal/reslink's Resource Link Manager, exposing the
// URI grammar of spec §6 over loopback HTTP instead of CoAP. Grounded
// almost directly on the teacher's internal/server/server.go: the same
// ada mux, the same ordered middleware chain, the same route-group shape.
package transporthttp

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/rakunlabs/splot/internal/config"
	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
)

// Server exposes a Resource Link Manager's URI space over HTTP.
type Server struct {
	cfg     config.Server
	manager *reslink.Manager
	server  *ada.Server
}

// New builds a Server; basePath-prefixed routes all resolve against
// manager using the request path (minus basePath) as the resource URI.
func New(cfg config.Server, manager *reslink.Manager) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{cfg: cfg, manager: manager, server: mux}

	group := mux.Group(cfg.BasePath)
	group.GET("/*", s.handleFetch)
	group.PUT("/*", s.handleApply)
	group.POST("/*", s.handleInvoke)

	return s
}

// Start blocks serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.cfg.Host, s.cfg.Port))
}

func resourceURI(r *http.Request) string {
	return "/" + r.PathValue("*")
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	link, err := s.manager.Resolve(resourceURI(r) + queryOf(r))
	if err != nil {
		httpResponseError(w, err)
		return
	}

	v, err := link.Fetch().Wait(r.Context())
	if err != nil {
		httpResponseError(w, err)
		return
	}
	httpResponseJSON(w, v.JSON(), http.StatusOK)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	p, err := reslink.Parse(resourceURI(r) + queryOf(r))
	if err != nil {
		httpResponseError(w, err)
		return
	}
	link, err := s.manager.Resolve(resourceURI(r) + queryOf(r))
	if err != nil {
		httpResponseError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpResponseError(w, splotval.NewError(splotval.ErrInvalidValue, "read body: %v", err))
		return
	}
	var raw any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			httpResponseError(w, splotval.NewError(splotval.ErrInvalidValue, "decode body: %v", err))
			return
		}
	}
	value, err := splotval.ValueFromJSON(raw)
	if err != nil {
		httpResponseError(w, err)
		return
	}

	if _, err := link.Apply(value, p.Mods).Wait(r.Context()); err != nil {
		httpResponseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	link, err := s.manager.Resolve(resourceURI(r) + queryOf(r))
	if err != nil {
		httpResponseError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpResponseError(w, splotval.NewError(splotval.ErrInvalidValue, "read body: %v", err))
		return
	}
	args := map[string]splotval.Value{}
	if len(body) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			httpResponseError(w, splotval.NewError(splotval.ErrInvalidMethodArguments, "decode body: %v", err))
			return
		}
		for k, v := range raw {
			val, err := splotval.ValueFromJSON(v)
			if err != nil {
				httpResponseError(w, err)
				return
			}
			args[k] = val
		}
	}

	v, err := link.Invoke(args).Wait(r.Context())
	if err != nil {
		httpResponseError(w, err)
		return
	}
	httpResponseJSON(w, v.JSON(), http.StatusOK)
}

func queryOf(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.URL.RawQuery
}
