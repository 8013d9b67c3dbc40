/* restapi.go: this module provides a simple ReST API over the SEL library
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/kraken-hpc/ipmisel/lib/library"
	"github.com/kraken-hpc/ipmisel/lib/mapping"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/kraken-hpc/ipmisel/lib/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RestAPI serves one Library. Every request holds the library lock, so
// requests against the SEL run one at a time.
type RestAPI struct {
	Addr string
	// Ready, if set, is called once the listener is open
	Ready func()

	log    log.FieldLogger
	mu     sync.Mutex
	lib    *library.Library
	router *mux.Router
	srv    *http.Server
}

func New(lib *library.Library, addr string, logger log.FieldLogger) *RestAPI {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &RestAPI{
		Addr: addr,
		log:  logger.WithField("module", "restapi"),
		lib:  lib,
	}
	r.setupRouter()
	return r
}

func (r *RestAPI) setupRouter() {
	r.router = mux.NewRouter()
	r.router.HandleFunc("/connections", r.readConnections).Methods("GET")
	r.router.HandleFunc("/connections/{alias}", r.switchConnection).Methods("PUT")
	r.router.HandleFunc("/settings", r.readSettings).Methods("GET")
	r.router.HandleFunc("/settings", r.updateSettings).Methods("PUT")
	r.router.HandleFunc("/sel/fetch", r.fetch).Methods("POST")
	r.router.HandleFunc("/sel", r.invalidate).Methods("DELETE")
	r.router.HandleFunc("/sel/records", r.readRecords).Methods("GET")
	r.router.HandleFunc("/sel/count", r.readCount).Methods("GET")
	r.router.HandleFunc("/sel/select", r.selectRecord).Methods("POST")
	r.router.HandleFunc("/sel/selected", r.readSelected).Methods("GET")
	r.router.HandleFunc("/sel/wait", r.wait).Methods("POST")
	r.router.HandleFunc("/sensors", r.readSensors).Methods("GET")
}

// Handler is the router wrapped in the CORS policy.
func (r *RestAPI) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"PUT", "GET", "POST", "DELETE"}),
	)(r.router)
}

// ListenAndServe serves until ctx is cancelled. Waits can hold a request
// for the whole wait timeout, so there is no write timeout.
func (r *RestAPI) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.Addr)
	if err != nil {
		return err
	}
	r.srv = &http.Server{
		Handler:     r.Handler(),
		ReadTimeout: 15 * time.Second,
	}
	r.log.Infof("restapi is listening on: %s", ln.Addr())
	if r.Ready != nil {
		r.Ready()
	}
	go func() {
		<-ctx.Done()
		r.log.Debug("restapi is shutting down listener")
		r.srv.Shutdown(context.Background())
	}()
	if err = r.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	r.log.Info("restapi listener stopped")
	return nil
}

/*
 * Responses
 */

// Record is the JSON form of a SEL record.
type Record struct {
	RecordID       uint16 `json:"record_id"`
	RecordType     uint8  `json:"record_type"`
	Timestamp      string `json:"timestamp"`
	Originator     string `json:"originator"`
	Channel        uint8  `json:"channel"`
	LUN            uint8  `json:"lun"`
	EvMRev         uint8  `json:"evm_rev"`
	SensorType     uint8  `json:"sensor_type"`
	SensorTypeName string `json:"sensor_type_name"`
	SensorNumber   uint8  `json:"sensor_number"`
	EventDirection string `json:"event_direction"`
	EventType      uint8  `json:"event_type"`
	EventData      string `json:"event_data"`
}

func newRecord(r ipmi.SelRecord) Record {
	return Record{
		RecordID:       uint16(r.RecordID),
		RecordType:     r.RecordType,
		Timestamp:      r.Time().Format(time.RFC3339),
		Originator:     r.Originator.String(),
		Channel:        r.Channel,
		LUN:            r.LUN,
		EvMRev:         r.EvMRev,
		SensorType:     uint8(r.SensorType),
		SensorTypeName: r.SensorType.Description(),
		SensorNumber:   r.SensorNumber,
		EventDirection: r.EventDirection.String(),
		EventType:      r.EventType,
		EventData:      fmt.Sprintf("0x%06x", r.EventData),
	}
}

type selection struct {
	Index    int    `json:"index"`
	Snapshot string `json:"snapshot"`
	Record   Record `json:"record"`
}

func newSelection(s sel.Selection) selection {
	return selection{Index: s.Index, Snapshot: s.SnapshotID.String(), Record: newRecord(s.Record)}
}

// arg accepts a JSON string or number, so "0x0a" and 10 both work
type arg string

func (a *arg) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = arg(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = arg(n.String())
	return nil
}

type selectRequest struct {
	SensorType   *arg `json:"sensor_type"`
	SensorNumber *arg `json:"sensor_number"`
	Index        arg  `json:"index"`
	RecordID     *arg `json:"record_id"`
	Offset       *arg `json:"offset"`
}

type waitRequest struct {
	SensorType   *arg `json:"sensor_type"`
	SensorNumber *arg `json:"sensor_number"`
	Count        arg  `json:"count"`
}

type settings struct {
	Timeout      string `json:"timeout,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
}

// status maps library errors to HTTP status codes
func status(err error) int {
	switch {
	case errors.Is(err, sel.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, sel.ErrStaleSelection), errors.Is(err, sel.ErrNoSelection), errors.Is(err, library.ErrNoConnection):
		return http.StatusConflict
	case errors.Is(err, sel.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, sel.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (r *RestAPI) writeError(w http.ResponseWriter, req *http.Request, err error) {
	code := status(err)
	r.log.WithField("status", code).Debugf("%s %s: %v", req.Method, req.URL.Path, err)
	r.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (r *RestAPI) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, e := json.Marshal(v)
	if e != nil {
		r.log.Errorf("error marshalling json: %v", e)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func (r *RestAPI) decode(req *http.Request, v interface{}) error {
	if e := json.NewDecoder(req.Body).Decode(v); e != nil {
		return errors.Wrapf(sel.ErrInvalidArgument, "bad request body: %v", e)
	}
	return nil
}

// filter reads the optional sensor_type or sensor_number query parameters
func filter(req *http.Request) (*sel.Filter, error) {
	q := req.URL.Query()
	if v := q.Get("sensor_type"); v != "" {
		t, err := mapping.FindSensorType(v)
		if err != nil {
			return nil, err
		}
		f := sel.BySensorType(t)
		return &f, nil
	}
	if v := q.Get("sensor_number"); v != "" {
		n, err := util.Uint8AnyBase(v)
		if err != nil {
			return nil, errors.Wrapf(sel.ErrInvalidArgument, "sensor_number: %v", err)
		}
		f := sel.BySensorNumber(n)
		return &f, nil
	}
	return nil, nil
}

/*
 * Route handlers
 */

func (r *RestAPI) readConnections(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.lib.Connections()
	if cs == nil {
		cs = []library.ConnectionInfo{}
	}
	r.writeJSON(w, http.StatusOK, cs)
}

func (r *RestAPI) switchConnection(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	params := mux.Vars(req)
	r.mu.Lock()
	defer r.mu.Unlock()
	old, e := r.lib.Switch(params["alias"])
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]int{"previous": old})
}

func (r *RestAPI) readSettings(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeJSON(w, http.StatusOK, settings{
		Timeout:      util.FormatTimestr(r.lib.Timeout()),
		PollInterval: util.FormatTimestr(r.lib.PollInterval()),
	})
}

// updateSettings returns the previous settings
func (r *RestAPI) updateSettings(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	var s settings
	if e := r.decode(req, &s); e != nil {
		r.writeError(w, req, e)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := settings{
		Timeout:      util.FormatTimestr(r.lib.Timeout()),
		PollInterval: util.FormatTimestr(r.lib.PollInterval()),
	}
	if s.Timeout != "" {
		if _, e := r.lib.SetTimeout(s.Timeout); e != nil {
			r.writeError(w, req, e)
			return
		}
	}
	if s.PollInterval != "" {
		if _, e := r.lib.SetPollInterval(s.PollInterval); e != nil {
			r.writeError(w, req, e)
			return
		}
	}
	r.writeJSON(w, http.StatusOK, old)
}

// fetch reads the SEL; ?prefetch=true keeps serving the result from cache
func (r *RestAPI) fetch(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	var e error
	if req.URL.Query().Get("prefetch") == "true" {
		_, e = r.lib.PrefetchSEL(req.Context())
	} else {
		_, e = r.lib.FetchSEL(req.Context())
	}
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	c, _ := r.lib.Active()
	snap, e := c.Store.Current()
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":      snap.Len(),
		"snapshot":   snap.ID.String(),
		"fetched_at": snap.FetchedAt.Format(time.RFC3339),
	})
}

func (r *RestAPI) invalidate(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.lib.InvalidateSEL(); e != nil {
		r.writeError(w, req, e)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// find returns the records of the current snapshot matching the query
func (r *RestAPI) find(req *http.Request) ([]ipmi.SelRecord, error) {
	c, e := r.lib.Active()
	if e != nil {
		return nil, e
	}
	f, e := filter(req)
	if e != nil {
		return nil, e
	}
	if f == nil {
		snap, e := c.Store.Current()
		if e != nil {
			return nil, e
		}
		return snap.Records(), nil
	}
	return c.Engine.Find(*f)
}

func (r *RestAPI) readRecords(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, e := r.find(req)
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	out := make([]Record, 0, len(rs))
	for _, rec := range rs {
		out = append(out, newRecord(rec))
	}
	r.writeJSON(w, http.StatusOK, out)
}

func (r *RestAPI) readCount(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, e := r.find(req)
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]int{"count": len(rs)})
}

func (r *RestAPI) selectRecord(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	var sr selectRequest
	if e := r.decode(req, &sr); e != nil {
		r.writeError(w, req, e)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		s sel.Selection
		e error
	)
	switch {
	case sr.SensorType != nil:
		s, e = r.lib.SelectSELRecordBySensorType(string(*sr.SensorType), string(sr.Index))
	case sr.SensorNumber != nil:
		s, e = r.lib.SelectSELRecordBySensorNumber(string(*sr.SensorNumber), string(sr.Index))
	case sr.RecordID != nil:
		s, e = r.lib.SelectSELRecordByRecordID(string(*sr.RecordID))
	case sr.Offset != nil:
		s, e = r.lib.SelectSELRecordAtOffset(string(*sr.Offset))
	default:
		e = errors.Wrap(sel.ErrInvalidArgument, "one of sensor_type, sensor_number, record_id or offset is required")
	}
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, newSelection(s))
}

func (r *RestAPI) readSelected(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	c, e := r.lib.Active()
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	s, e := c.Engine.Selected()
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, newSelection(s))
}

func (r *RestAPI) wait(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	wr := waitRequest{Count: "1"}
	if e := r.decode(req, &wr); e != nil {
		r.writeError(w, req, e)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		s sel.Selection
		e error
	)
	switch {
	case wr.SensorType != nil:
		s, e = r.lib.WaitUntilSELContainsXTimesSensorType(req.Context(), string(wr.Count), string(*wr.SensorType))
	case wr.SensorNumber != nil:
		s, e = r.lib.WaitUntilSELContainsXTimesSensorNumber(req.Context(), string(wr.Count), string(*wr.SensorNumber))
	default:
		e = errors.Wrap(sel.ErrInvalidArgument, "one of sensor_type or sensor_number is required")
	}
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, newSelection(s))
}

func (r *RestAPI) readSensors(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	sensors, e := r.lib.Sensors(req.Context())
	if e != nil {
		r.writeError(w, req, e)
		return
	}
	r.writeJSON(w, http.StatusOK, sensors)
}
