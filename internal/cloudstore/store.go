// Package cloudstore is a self-hostable stand-in for the hosted store the
// relay-store transport talks to. It keeps event and device rows in
// memory behind a single actor goroutine and answers the PostgREST-style
// subset the cloud client uses: eq/gte column filters, merge-duplicates
// upserts, and partial PATCH.
package cloudstore

import (
	"context"
	"time"
)

type StoreMsg interface{ isStoreMsg() }

// UpsertEvent inserts a new event row. Created reports false when the
// event name is already taken.
type UpsertEvent struct {
	Row   map[string]any
	Reply chan bool
}

func (UpsertEvent) isStoreMsg() {}

// PatchEvent merges fields into an existing event row.
type PatchEvent struct {
	Name   string
	Fields map[string]any
	Reply  chan bool
}

func (PatchEvent) isStoreMsg() {}

// QueryEvents returns the rows matching the filter, shallow-copied so
// callers never alias actor state.
type QueryEvents struct {
	Name  string // "" matches all
	Reply chan []map[string]any
}

func (QueryEvents) isStoreMsg() {}

// UpsertDevice registers or refreshes a device row, keyed on
// (event_name, device_id) like a merge-duplicates insert.
type UpsertDevice struct {
	Row   map[string]any
	Reply chan struct{}
}

func (UpsertDevice) isStoreMsg() {}

// PatchDevices merges fields into every device row matching the filter.
type PatchDevices struct {
	Event    string
	DeviceID string
	Fields   map[string]any
	Reply    chan struct{}
}

func (PatchDevices) isStoreMsg() {}

// QueryDevices lists device rows for an event, optionally limited to one
// device and/or to rows seen at or after a cutoff.
type QueryDevices struct {
	Event    string
	DeviceID string     // "" matches all
	SeenRef  *time.Time // nil means no staleness filter
	Reply    chan []map[string]any
}

func (QueryDevices) isStoreMsg() {}

// DeleteDevices removes device rows matching the filter.
type DeleteDevices struct {
	Event    string
	DeviceID string
	Reply    chan struct{}
}

func (DeleteDevices) isStoreMsg() {}

type ShutdownStore struct{}

func (ShutdownStore) isStoreMsg() {}

type Store struct {
	inbox   chan StoreMsg
	events  map[string]map[string]any
	devices []map[string]any
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewStore(parent context.Context) *Store {
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		inbox:  make(chan StoreMsg, 64),
		events: make(map[string]map[string]any),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.loop()
	return s
}

func (s *Store) Inbox() chan<- StoreMsg { return s.inbox }

func (s *Store) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case UpsertEvent:
				name, _ := msg.Row["event_name"].(string)
				if _, taken := s.events[name]; taken || name == "" {
					msg.Reply <- false
					break
				}
				s.events[name] = copyRow(msg.Row)
				msg.Reply <- true

			case PatchEvent:
				row, ok := s.events[msg.Name]
				if ok {
					for k, v := range msg.Fields {
						row[k] = v
					}
				}
				msg.Reply <- ok

			case QueryEvents:
				var out []map[string]any
				for name, row := range s.events {
					if msg.Name == "" || msg.Name == name {
						out = append(out, copyRow(row))
					}
				}
				msg.Reply <- out

			case UpsertDevice:
				event, _ := msg.Row["event_name"].(string)
				id, _ := msg.Row["device_id"].(string)
				merged := false
				for _, row := range s.devices {
					if row["event_name"] == event && row["device_id"] == id {
						for k, v := range msg.Row {
							row[k] = v
						}
						merged = true
						break
					}
				}
				if !merged {
					s.devices = append(s.devices, copyRow(msg.Row))
				}
				msg.Reply <- struct{}{}

			case PatchDevices:
				for _, row := range s.devices {
					if deviceMatch(row, msg.Event, msg.DeviceID) {
						for k, v := range msg.Fields {
							row[k] = v
						}
					}
				}
				msg.Reply <- struct{}{}

			case QueryDevices:
				var out []map[string]any
				for _, row := range s.devices {
					if !deviceMatch(row, msg.Event, msg.DeviceID) {
						continue
					}
					if msg.SeenRef != nil && !seenSince(row, *msg.SeenRef) {
						continue
					}
					out = append(out, copyRow(row))
				}
				msg.Reply <- out

			case DeleteDevices:
				kept := s.devices[:0]
				for _, row := range s.devices {
					if !deviceMatch(row, msg.Event, msg.DeviceID) {
						kept = append(kept, row)
					}
				}
				s.devices = kept
				msg.Reply <- struct{}{}

			case ShutdownStore:
				s.cancel()
				return
			}
		}
	}
}

func deviceMatch(row map[string]any, event, deviceID string) bool {
	if event != "" && row["event_name"] != event {
		return false
	}
	if deviceID != "" && row["device_id"] != deviceID {
		return false
	}
	return true
}

func seenSince(row map[string]any, cutoff time.Time) bool {
	raw, _ := row["last_seen"].(string)
	seen, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	return !seen.Before(cutoff)
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
