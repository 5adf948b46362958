package cloudstore

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes exposes the store subset the sync client speaks. Filters arrive
// PostgREST-style as query params ("event_name=eq.X", "last_seen=gte.T").
func Routes(s *Store, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Post("/rest/v1/events", CreateEvent(s, log))
	r.Patch("/rest/v1/events", UpdateEvent(s))
	r.Get("/rest/v1/events", ListEvents(s))
	r.Post("/rest/v1/connected_devices", RegisterDevice(s))
	r.Patch("/rest/v1/connected_devices", UpdateDevices(s))
	r.Get("/rest/v1/connected_devices", ListDevices(s))
	r.Delete("/rest/v1/connected_devices", RemoveDevices(s))
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func CreateEvent(s *Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		reply := make(chan bool, 1)
		s.Inbox() <- UpsertEvent{Row: row, Reply: reply}
		if !<-reply {
			http.Error(w, "event exists", http.StatusConflict)
			return
		}
		log.Info("event created", zap.Any("event", row["event_name"]))
		w.WriteHeader(http.StatusCreated)
	}
}

func UpdateEvent(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := eqFilter(r, "event_name")
		if name == "" {
			http.Error(w, "missing event_name filter", http.StatusBadRequest)
			return
		}
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		reply := make(chan bool, 1)
		s.Inbox() <- PatchEvent{Name: name, Fields: fields, Reply: reply}
		<-reply // a patch on a missing row is a no-op, like PostgREST
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListEvents(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []map[string]any, 1)
		s.Inbox() <- QueryEvents{Name: eqFilter(r, "event_name"), Reply: reply}
		writeRows(w, <-reply)
	}
}

func RegisterDevice(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		reply := make(chan struct{}, 1)
		s.Inbox() <- UpsertDevice{Row: row, Reply: reply}
		<-reply
		w.WriteHeader(http.StatusCreated)
	}
}

func UpdateDevices(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		reply := make(chan struct{}, 1)
		s.Inbox() <- PatchDevices{
			Event:    eqFilter(r, "event_name"),
			DeviceID: eqFilter(r, "device_id"),
			Fields:   fields,
			Reply:    reply,
		}
		<-reply
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListDevices(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var seenRef *time.Time
		if raw := gteFilter(r, "last_seen"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				http.Error(w, "bad last_seen filter", http.StatusBadRequest)
				return
			}
			seenRef = &t
		}

		reply := make(chan []map[string]any, 1)
		s.Inbox() <- QueryDevices{
			Event:    eqFilter(r, "event_name"),
			DeviceID: eqFilter(r, "device_id"),
			SeenRef:  seenRef,
			Reply:    reply,
		}
		writeRows(w, <-reply)
	}
}

func RemoveDevices(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan struct{}, 1)
		s.Inbox() <- DeleteDevices{
			Event:    eqFilter(r, "event_name"),
			DeviceID: eqFilter(r, "device_id"),
			Reply:    reply,
		}
		<-reply
		w.WriteHeader(http.StatusNoContent)
	}
}

func eqFilter(r *http.Request, col string) string {
	return strings.TrimPrefix(r.URL.Query().Get(col), "eq.")
}

func gteFilter(r *http.Request, col string) string {
	v := r.URL.Query().Get(col)
	if !strings.HasPrefix(v, "gte.") {
		return ""
	}
	return strings.TrimPrefix(v, "gte.")
}

func writeRows(w http.ResponseWriter, rows []map[string]any) {
	if rows == nil {
		rows = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}
