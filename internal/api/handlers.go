package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/process"
	"github.com/mkarlsen/devbay/internal/scanner"
	"github.com/mkarlsen/devbay/internal/tools"
)

var validate = validator.New()

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeValidation, errors.CodeTargetInvalid:
		status = http.StatusBadRequest
	case errors.CodeStateConflict:
		status = http.StatusConflict
	case errors.CodeToolUnavailable:
		status = http.StatusServiceUnavailable
	case errors.CodeSubprocess, errors.CodeSpawnFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(code)})
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// ScanRequest carries scan options over the wire.
type ScanRequest struct {
	Hosts            []string `json:"hosts" validate:"omitempty,dive,required"`
	Ports            []uint16 `json:"ports" validate:"omitempty,max=1024"`
	OSDetection      bool     `json:"os_detection"`
	VersionDetection bool     `json:"version_detection"`
	TimeoutMS        int      `json:"timeout_ms" validate:"omitempty,min=1,max=60000"`
	Parallelism      int      `json:"parallelism" validate:"omitempty,min=1,max=1000"`
	External         bool     `json:"external"`
}

// ScanResponse wraps the per-host reports.
type ScanResponse struct {
	Reports  []*scanner.Report `json:"reports"`
	Duration string            `json:"duration"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: string(errors.CodeValidation)})
		return
	}

	options := scanner.DefaultOptions()
	options.Hosts = req.Hosts
	options.Ports = req.Ports
	options.OSDetection = req.OSDetection
	options.VersionDetection = req.VersionDetection
	if req.TimeoutMS > 0 {
		options.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	} else {
		options.Timeout = s.config.Scanning.Timeout
	}
	if req.Parallelism > 0 {
		options.Parallelism = req.Parallelism
	} else {
		options.Parallelism = s.config.Scanning.Parallelism
	}

	started := time.Now()
	external := req.External || s.config.Scanning.PreferExternal
	reports, err := s.orchestrator.Scan(r.Context(), options, external)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{
		Reports:  reports,
		Duration: time.Since(started).Round(time.Millisecond).String(),
	})
}

// ScanLatestResponse is the cached scheduled-scan payload.
type ScanLatestResponse struct {
	Reports     []*scanner.Report `json:"reports"`
	RefreshedAt time.Time         `json:"refreshed_at"`
}

func (s *Server) handleScanLatest(w http.ResponseWriter, _ *http.Request) {
	if s.scanCache == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "scheduled scans are not enabled"})
		return
	}
	reports, refreshedAt := s.scanCache.LastScan()
	if refreshedAt.IsZero() {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no scheduled scan has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, ScanLatestResponse{
		Reports:     reports,
		RefreshedAt: refreshedAt,
	})
}

// ServerStartRequest optionally overrides the configured server setup.
type ServerStartRequest struct {
	Port    uint16 `json:"port" validate:"omitempty,min=1024"`
	Dir     string `json:"dir"`
	Script  string `json:"script"`
	DBPath  string `json:"db_path"`
	DevMode *bool  `json:"dev_mode"`
}

func (s *Server) handleServerStart(w http.ResponseWriter, r *http.Request) {
	opts := process.ServerOptions{
		Port:    uint16(s.config.Server.Port),
		Dir:     s.config.Server.Dir,
		Script:  s.config.Server.Script,
		DBPath:  s.config.Server.DBPath,
		DevMode: s.config.Server.DevMode,
	}
	if r.ContentLength > 0 {
		var req ServerStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: string(errors.CodeValidation)})
			return
		}
		if req.Port != 0 {
			opts.Port = req.Port
		}
		if req.Dir != "" {
			opts.Dir = req.Dir
		}
		if req.Script != "" {
			opts.Script = req.Script
		}
		if req.DBPath != "" {
			opts.DBPath = req.DBPath
		}
		if req.DevMode != nil {
			opts.DevMode = *req.DevMode
		}
	}

	handle, err := s.supervisor.StartServer(opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusWithPID(process.KindServer, handle.PID()))
}

func (s *Server) handleServerStop(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.Stop(r.Context(), process.KindServer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Status(process.KindServer))
}

func (s *Server) handleServerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.Status(process.KindServer))
}

// TunnelStartRequest optionally overrides the tunneled port.
type TunnelStartRequest struct {
	Port uint16 `json:"port" validate:"omitempty,min=1"`
}

func (s *Server) handleTunnelStart(w http.ResponseWriter, r *http.Request) {
	port := uint16(s.config.TunnelPort())
	if r.ContentLength > 0 {
		var req TunnelStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		if req.Port != 0 {
			port = req.Port
		}
	}

	handle, err := s.supervisor.StartTunnel(port)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusWithPID(process.KindTunnel, handle.PID()))
}

func (s *Server) handleTunnelStop(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.Stop(r.Context(), process.KindTunnel); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Status(process.KindTunnel))
}

func (s *Server) handleTunnelStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.Status(process.KindTunnel))
}

func (s *Server) handleRemoteStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.vpnClient.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tools.CheckEnvironment(r.Context()))
}

// PortCheckResponse reports whether a port can be bound locally.
type PortCheckResponse struct {
	Port      uint16 `json:"port"`
	Available bool   `json:"available"`
}

func (s *Server) handlePortCheck(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["port"]
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || port == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "port must be between 1 and 65535",
			Code:  string(errors.CodeValidation),
		})
		return
	}
	writeJSON(w, http.StatusOK, PortCheckResponse{
		Port:      uint16(port),
		Available: tools.PortAvailable(uint16(port)),
	})
}

func (s *Server) statusWithPID(kind process.Kind, pid int) process.Status {
	status := s.supervisor.Status(kind)
	if status.PID == 0 {
		status.PID = pid
	}
	return status
}
