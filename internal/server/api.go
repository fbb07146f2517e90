// Package server implements the authenticated read-only query API.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rsclarke/netwatch/internal/auth"
	"github.com/rsclarke/netwatch/internal/db"
	"github.com/rsclarke/netwatch/internal/logging"
	"github.com/rsclarke/netwatch/internal/models"
	"github.com/rsclarke/netwatch/internal/types"
	"go.uber.org/zap"
)

// Realm is sent in the WWW-Authenticate challenge.
const Realm = "netwatch"

// APIServer serves traffic, device and scan views over the store.
type APIServer struct {
	DB          *sql.DB
	Credentials *auth.Credentials
	Logger      *zap.Logger
}

// AuthMiddleware requires HTTP Basic credentials on every request.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || s.Credentials == nil || !s.Credentials.Verify(username, password) {
			s.Logger.Debug("rejected request", logging.Method(r.Method), logging.Path(r.URL.Path),
				logging.RemoteIP(r.RemoteAddr), logging.Status(http.StatusUnauthorized))
			w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`", charset="UTF-8"`)
			writeJSON(w, http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /traffic", s.handleListTraffic)
	mux.HandleFunc("GET /devices", s.handleListDevices)
	mux.HandleFunc("GET /scans", s.handleListScans)
	mux.HandleFunc("/", s.handleNotFound)

	return s.AuthMiddleware(mux)
}

func (s *APIServer) handleListTraffic(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := db.ListTraffic(s.DB, r.URL.Query().Get("interface"), limit)
	if err != nil {
		s.Logger.Error("failed to list traffic", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "database error"})
		return
	}

	resp := make([]types.TrafficRecord, 0, len(records))
	for _, rec := range records {
		resp = append(resp, trafficResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := db.ListDevices(s.DB, r.URL.Query().Get("interface"))
	if err != nil {
		s.Logger.Error("failed to list devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "database error"})
		return
	}

	resp := make([]types.DeviceRecord, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, types.DeviceRecord{
			IP:        d.Address,
			Hostname:  d.Hostname,
			MAC:       d.MACAddress,
			Interface: d.Interface,
			LastSeen:  d.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	scans, err := db.ListScans(s.DB, r.URL.Query().Get("interface"), limit)
	if err != nil {
		s.Logger.Error("failed to list scans", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "database error"})
		return
	}

	resp := make([]types.ScanRecord, 0, len(scans))
	for _, sc := range scans {
		resp = append(resp, types.ScanRecord{
			ID:          sc.ID,
			Timestamp:   sc.Timestamp,
			Interface:   sc.Interface,
			DeviceCount: sc.DeviceCount,
			DurationMS:  sc.DurationMS,
			Error:       sc.Error,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: "not found: use /traffic, /devices or /scans"})
}

// parseLimit reads the optional limit parameter. Values above db.MaxRows are
// capped.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return db.MaxRows, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "invalid limit"})
		return 0, false
	}
	return min(n, db.MaxRows), true
}

func trafficResponse(rec models.TrafficRecord) types.TrafficRecord {
	return types.TrafficRecord{
		ID:        rec.ID,
		Timestamp: rec.Timestamp,
		Interface: rec.Interface,
		SrcIP:     rec.SourceAddress,
		DstIP:     rec.DestinationAddress,
		Protocol:  rec.Protocol,
		Payload:   rec.HasPayload,
		Encrypted: rec.IsEncrypted,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
