package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Router wraps http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (websocket, metrics, static files).
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDeviceRoutes registers the registry listing and lookup.
//
//	/api/devices                     every known device
//	/api/devices/{deviceId}          one device
func (r *Router) RegisterDeviceRoutes(d *DevicesHandler) {
	r.Handle("/api/devices", getOnly(d.List))
	r.Handle("/api/devices/", getOnly(func(w http.ResponseWriter, req *http.Request) {
		parts, ok := pathParams(req, "/api/devices/")
		if !ok {
			writeJSON(w, http.StatusBadRequest, Fail("malformed path"))
			return
		}
		if len(parts) != 1 {
			writeJSON(w, http.StatusNotFound, Fail("not found"))
			return
		}
		d.Get(w, req, parts[0])
	}))
}

// RegisterLogRoutes registers log listing and export.
//
//	/api/logs                        devices with logs
//	/api/logs/{deviceId}             days for one device
//	/api/logs/{deviceId}/{day}       export, ?format=csv|xlsx|json
func (r *Router) RegisterLogRoutes(l *LogsHandler) {
	r.Handle("/api/logs", getOnly(l.ListDevices))
	r.Handle("/api/logs/", getOnly(func(w http.ResponseWriter, req *http.Request) {
		parts, ok := pathParams(req, "/api/logs/")
		if !ok {
			writeJSON(w, http.StatusBadRequest, Fail("malformed path"))
			return
		}
		switch len(parts) {
		case 1:
			l.ListDays(w, req, parts[0])
		case 2:
			l.Export(w, req, parts[0], parts[1])
		default:
			writeJSON(w, http.StatusNotFound, Fail("not found"))
		}
	}))
}

// RegisterArchiveRoutes registers the archive ledger and manual pass
// endpoints.
func (r *Router) RegisterArchiveRoutes(a *ArchiveHandler) {
	r.Handle("/api/archive/run", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.Run(w, req)
	})
	r.Handle("/api/archive/", getOnly(func(w http.ResponseWriter, req *http.Request) {
		parts, ok := pathParams(req, "/api/archive/")
		if !ok {
			writeJSON(w, http.StatusBadRequest, Fail("malformed path"))
			return
		}
		if len(parts) != 1 {
			writeJSON(w, http.StatusNotFound, Fail("not found"))
			return
		}
		a.ListUploads(w, req, parts[0])
	}))
}

// RegisterDoctorRoutes registers health and metrics endpoints.
func (r *Router) RegisterDoctorRoutes(d *DoctorHandler) {
	r.Handle("/health", getOnly(d.HealthCheck))
	r.Handle("/healthz", getOnly(d.HealthCheck))
	if d.metrics != nil {
		r.HandleHandler("/metrics", d.metrics)
	}
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// pathParams splits the escaped path after prefix and unescapes each
// segment, so a device id may itself contain an encoded '/'.
func pathParams(req *http.Request, prefix string) ([]string, bool) {
	parts := splitPath(strings.TrimPrefix(req.URL.EscapedPath(), prefix))
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return nil, false
		}
		parts[i] = v
	}
	return parts, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
