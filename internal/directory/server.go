package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/relay"
)

type ctxKey struct{}

// Server exposes the key directory and the websocket relay over HTTP.
type Server struct {
	store    *MemoryStore
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(store *MemoryStore, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		store: store,
		hub:   NewHub(store, log),
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.caller)
	api.HandleFunc("/devices/self/identity", s.putIdentity).Methods(http.MethodPut)
	api.HandleFunc("/devices/self/prekeys", s.putPreKeys).Methods(http.MethodPut)
	api.HandleFunc("/devices/self/signed", s.putSignedPreKey).Methods(http.MethodPut)
	api.HandleFunc("/devices/self/signed/{id:[0-9]+}", s.deleteSignedPreKey).Methods(http.MethodDelete)
	api.HandleFunc("/devices/self/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/users/{user}/devices", s.getDevices).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.connect).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dev, err := strconv.ParseUint(r.Header.Get(relay.HeaderDevice), 10, 32)
		addr := domain.DeviceAddress{UserID: domain.UserID(r.Header.Get(relay.HeaderUser)), DeviceID: domain.DeviceID(dev)}
		if err != nil || !addr.Valid() {
			writeError(w, http.StatusUnauthorized, "missing device address")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, addr)))
	})
}

func callerFrom(r *http.Request) domain.DeviceAddress {
	addr, _ := r.Context().Value(ctxKey{}).(domain.DeviceAddress)
	return addr
}

func (s *Server) putIdentity(w http.ResponseWriter, r *http.Request) {
	var in relay.IdentityUpload
	if !decode(w, r, &in) {
		return
	}
	if in.IdentityKey.IsZero() || in.SigningKey.IsZero() || in.RegistrationID == 0 {
		writeError(w, http.StatusBadRequest, "incomplete identity")
		return
	}
	s.store.PutIdentity(callerFrom(r), in.IdentityKey, in.SigningKey, in.RegistrationID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putPreKeys(w http.ResponseWriter, r *http.Request) {
	var in relay.PreKeysUpload
	if !decode(w, r, &in) {
		return
	}
	s.store.AddPreKeys(callerFrom(r), in.PreKeys)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putSignedPreKey(w http.ResponseWriter, r *http.Request) {
	var in domain.SignedPreKeyPublic
	if !decode(w, r, &in) {
		return
	}
	if in.Pub.IsZero() || len(in.Signature) == 0 {
		writeError(w, http.StatusBadRequest, "incomplete signed pre-key")
		return
	}
	s.store.PutSignedPreKey(callerFrom(r), in)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteSignedPreKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.store.RemoveSignedPreKey(callerFrom(r), domain.SignedPreKeyID(id)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Status(callerFrom(r)))
}

func (s *Server) getDevices(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(mux.Vars(r)["user"])
	known := make(map[domain.DeviceAddress]bool)
	for _, v := range r.URL.Query()[relay.QueryKnown] {
		addr, err := domain.ParseDeviceAddress(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		known[addr] = true
	}
	writeJSON(w, http.StatusOK, relay.DevicesResponse{Bundles: s.store.Bundles(user, callerFrom(r), known)})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	addr := callerFrom(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("address", addr.String()), zap.Error(err))
		return
	}
	s.log.Info("device connected", zap.String("address", addr.String()))
	s.hub.serve(r.Context(), newClient(addr, conn))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)))
	})
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
