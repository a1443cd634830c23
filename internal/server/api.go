package server

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
	"github.com/tartampluch/card-countdown/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the reply shape of every mutating endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type scanReply struct {
	Success bool   `json:"success"`
	UID     string `json:"uid,omitempty"`
	Error   string `json:"error,omitempty"`
}

type wifiRequest struct {
	SSID     string `json:"ssid" validate:"required,max=32"`
	Password string `json:"password" validate:"max=63"`
}

type importRequest struct {
	URL      string `json:"url" validate:"required,url"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type importReply struct {
	Success bool `json:"success"`
	engine.ImportResult
}

type statusReply struct {
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	PresentUID    string    `json:"presentUid"`
	DisplayedUID  string    `json:"displayedUid"`
	State         string    `json:"state"`
	LastFrame     string    `json:"lastFrame"`
	LastRender    time.Time `json:"lastRender"`
	Renders       int       `json:"renders"`
	Countdowns    int       `json:"countdowns"`
	Capacity      int       `json:"capacity"`
}

func (s *Server) handleListCountdowns(w http.ResponseWriter, _ *http.Request) {
	recs := s.deps.Store.List()
	if recs == nil {
		recs = []engine.Record{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleAddCountdown(w http.ResponseWriter, r *http.Request) {
	var rec engine.Record
	if !s.decode(w, r, &rec) {
		return
	}
	if err := s.validate.Struct(rec); err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrInvalidBody+": "+err.Error())
		return
	}
	if err := s.deps.Store.Add(rec); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleUpdateCountdown(w http.ResponseWriter, r *http.Request) {
	var rec engine.Record
	if !s.decode(w, r, &rec) {
		return
	}

	var err error
	if rec.UID == "" {
		err = s.validate.StructExcept(rec, "UID")
	} else {
		err = s.validate.Struct(rec)
	}
	if err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrInvalidBody+": "+err.Error())
		return
	}

	if err := s.deps.Store.Update(chi.URLParam(r, config.URLParamUID), rec); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleDeleteCountdown(w http.ResponseWriter, r *http.Request) {
	uid := engine.NormalizeUID(chi.URLParam(r, config.URLParamUID))
	if uid == "" {
		s.fail(w, http.StatusBadRequest, config.ErrUIDRequired)
		return
	}
	if err := s.deps.Store.Delete(uid); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true})
}

// handleScanCard reports the card read within the scan window, so the web UI
// can fill in the UID of the card the user just held to the reader.
func (s *Server) handleScanCard(w http.ResponseWriter, _ *http.Request) {
	seen, ok := s.deps.Loop.LastSighting()
	if !ok || s.deps.Clock.Now().Sub(seen.At) > s.deps.ScanWindow {
		s.writeJSON(w, http.StatusOK, scanReply{Error: config.ErrNoCardSeen})
		return
	}
	s.writeJSON(w, http.StatusOK, scanReply{Success: true, UID: seen.UID})
}

func (s *Server) handleGetWiFi(w http.ResponseWriter, _ *http.Request) {
	wifi, err := s.deps.Store.WiFi()
	if err != nil {
		s.log.Error(config.ErrKeyringRead, config.LogKeyError, err)
		s.fail(w, http.StatusInternalServerError, config.ErrKeyringRead)
		return
	}
	s.writeJSON(w, http.StatusOK, wifi)
}

func (s *Server) handleSaveWiFi(w http.ResponseWriter, r *http.Request) {
	var req wifiRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrWiFiSSID)
		return
	}
	if err := s.deps.Store.SaveWiFi(req.SSID, req.Password); err != nil {
		s.log.Error(config.ErrKeyringWrite, config.LogKeyError, err)
		s.fail(w, http.StatusInternalServerError, config.ErrKeyringWrite)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: config.MsgWiFiSaved})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Loop.Status()
	s.writeJSON(w, http.StatusOK, statusReply{
		Version:       config.Version,
		UptimeSeconds: int64(s.deps.Clock.Now().Sub(s.started) / time.Second),
		PresentUID:    st.PresentUID,
		DisplayedUID:  st.DisplayedUID,
		State:         st.State,
		LastFrame:     st.LastFrame,
		LastRender:    st.LastRender,
		Renders:       st.Renders,
		Countdowns:    s.deps.Store.Len(),
		Capacity:      s.deps.Store.Capacity(),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Restart == nil {
		s.fail(w, http.StatusNotImplemented, config.ErrRestartNotWired)
		return
	}
	s.log.Info(config.MsgRestartReq)
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: config.MsgRestarting})
	time.AfterFunc(config.RestartDelay, s.deps.Restart)
}

// handleImportVCard accepts either a raw vCard body or a JSON request naming a
// remote address book.
func (s *Server) handleImportVCard(w http.ResponseWriter, r *http.Request) {
	var (
		res engine.ImportResult
		err error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get(config.HeaderContentType))
	if mediaType == config.MimeJSON {
		var req importRequest
		if !s.decode(w, r, &req) {
			return
		}
		if verr := s.validate.Struct(req); verr != nil {
			s.fail(w, http.StatusBadRequest, config.ErrImportSource)
			return
		}
		res, err = s.importer.ImportURL(r.Context(), s.deps.Fetcher, req.URL, req.User, req.Password)
	} else {
		body := http.MaxBytesReader(w, r.Body, config.MaxImportSize)
		res, err = s.importer.Import(r.Context(), body)
	}

	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, importReply{Success: true, ImportResult: res})
}

// decode reads a bounded JSON body. On failure it answers 400 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, config.MaxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrInvalidJSON)
		return false
	}
	return true
}

// storeError maps record store rules to status codes.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateUID):
		s.fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrCapacityExceeded):
		s.fail(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrUIDImmutable):
		s.fail(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error(config.ErrStoreSave, config.LogKeyError, err)
		s.fail(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(config.ErrWriteResp, config.LogKeyError, err)
	}
}
