package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"wifi-provisiond/internal/netctl"
	"wifi-provisiond/internal/provision"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]string{"version": s.version})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.mgr.Status(r.Context())
	if err != nil {
		s.logger.Error("status", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeData(w, st)
}

func (s *Server) handleAPIScan(w http.ResponseWriter, r *http.Request) {
	aps, err := s.mgr.Scan(r.Context())
	if err != nil {
		s.logger.Error("scan", "err", err)
		s.writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	if aps == nil {
		aps = []netctl.AccessPoint{}
	}
	s.writeData(w, aps)
}

type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleAPIConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SSID == "" || len(req.SSID) > 32 {
		s.writeError(w, http.StatusBadRequest, "ssid must be 1-32 bytes")
		return
	}
	// WPA2-PSK passphrase bounds; empty means an open network.
	if req.Password != "" && (len(req.Password) < 8 || len(req.Password) > 63) {
		s.writeError(w, http.StatusBadRequest, "password must be 8-63 characters")
		return
	}

	result, err := s.mgr.Connect(r.Context(), req.SSID, req.Password)
	if err != nil {
		if errors.Is(err, provision.ErrAttemptInProgress) {
			s.writeError(w, http.StatusConflict, "a connection attempt is already in progress")
			return
		}
		if !errors.Is(err, provision.ErrAllAttemptsFailed) {
			s.logger.Error("connect", "err", err, "ssid", req.SSID)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		// Exhausted retries: the result carries the user-facing diagnosis.
	}

	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: result.Success,
		Message: result.Message,
		Data:    result,
	})
}

func (s *Server) handleAPISavedNetworks(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.mgr.SavedNetworks(r.Context())
	if err != nil {
		s.logger.Error("saved networks", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if profiles == nil {
		profiles = []netctl.Profile{}
	}
	s.writeData(w, profiles)
}

func (s *Server) handleAPIForgetNetwork(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.mgr.Forget(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, netctl.ErrProfileNotFound):
			s.writeError(w, http.StatusNotFound, "no saved network with that id")
		case errors.Is(err, provision.ErrCannotForgetActive):
			s.writeError(w, http.StatusConflict, "cannot forget the active network; connect elsewhere first")
		default:
			s.logger.Error("forget network", "err", err, "id", id)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "network forgotten"})
}

type hotspotRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleAPIHotspot switches the device between hotspot and client mode.
// An empty body or {"enabled": true} activates the hotspot.
func (s *Server) handleAPIHotspot(w http.ResponseWriter, r *http.Request) {
	req := hotspotRequest{}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	enable := req.Enabled == nil || *req.Enabled
	if !enable {
		if err := s.mgr.ActivateClient(r.Context()); err != nil {
			s.logger.Error("activate client", "err", err)
			s.writeError(w, http.StatusInternalServerError, "failed to leave hotspot mode")
			return
		}
		s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "client mode enabled"})
		return
	}

	if err := s.mgr.ActivateHotspot(r.Context()); err != nil {
		s.logger.Error("activate hotspot", "err", err)
		s.writeError(w, http.StatusInternalServerError, "hotspot activation failed")
		return
	}
	hs := s.mgr.Hotspot()
	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "hotspot active",
		Data:    map[string]string{"ssid": hs.SSID, "ip": hs.IPAddress},
	})
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1-200")
			return
		}
		limit = n
	}

	out := map[string]interface{}{
		"attempts":    []interface{}{},
		"transitions": []interface{}{},
	}
	if s.history != nil {
		attempts, err := s.history.RecentAttempts(limit)
		if err != nil {
			s.logger.Error("history attempts", "err", err)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		transitions, err := s.history.RecentTransitions(limit)
		if err != nil {
			s.logger.Error("history transitions", "err", err)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out["attempts"] = attempts
		out["transitions"] = transitions
	}
	s.writeData(w, out)
}
