// Package api exposes the console over HTTP. It serves a command endpoint,
// a probe endpoint returning parsed results, a websocket console,
// server-sent events for probe results and machine state, and metrics.
package api

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/grbl"
)

const (
	ChannelProbe = "/events/probe"
	ChannelState = "/events/state"
)

// Console is the command console served by the API.
type Console interface {
	Exec(line string) string
	Status() grbl.Status
	Observe(fn grbl.Observer)
}

type API struct {
	c        Console
	router   *mux.Router
	events   *events
	upgrader websocket.Upgrader
	metrics  *metrics
	log      log.FieldLogger
}

// ProbeResponse is the result of a probe request.
type ProbeResponse struct {
	grbl.ProbeResult

	// Alarm is set if the probe failed and halted the machine.
	Alarm  bool
	Output string
}

func New(c Console, l log.FieldLogger) *API {
	if l == nil {
		l = log.StandardLogger()
	}
	a := &API{
		c:      c,
		router:  mux.NewRouter(),
		events:  newEvents(l, ChannelProbe, ChannelState),
		metrics: newMetrics(),
		log:     l,
	}

	a.router.Use(a.cors, a.logRequests)
	a.router.HandleFunc("/api/run", a.run).Methods(http.MethodPost)
	a.router.HandleFunc("/api/probe", a.probe).Methods(http.MethodPost)
	a.router.HandleFunc("/api/status", a.status).Methods(http.MethodGet)
	a.router.HandleFunc("/ws", a.websocket).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.HandlerFor(a.metrics.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	a.router.Handle(ChannelProbe, a.events.Handler(ChannelProbe)).Methods(http.MethodGet)
	a.router.Handle(ChannelState, a.events.Handler(ChannelState)).Methods(http.MethodGet)

	c.Observe(a.publish)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	a.router.ServeHTTP(w, req)
}

// Close disconnects all event subscribers and refuses new ones. It must be
// called before shutting down the HTTP server, which waits for open
// streams.
func (a *API) Close() {
	a.events.Close()
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		next.ServeHTTP(w, req)
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.log.WithFields(log.Fields{
			"method": req.Method,
			"path":   req.URL.Path,
			"remote": req.RemoteAddr,
		}).Debug("request")
		next.ServeHTTP(w, req)
	})
}

// publish counts and sends probe reports and the new state after every
// command.
func (a *API) publish(line, output string) {
	a.metrics.observe(output)
	if res := findProbe(output); res != nil {
		a.send(ChannelProbe, res)
	}
	a.send(ChannelState, a.c.Status())
}

func (a *API) send(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.WithError(err).Error("marshal event")
		return
	}
	a.events.Publish(channel, data)
}

func findProbe(output string) *grbl.ProbeResult {
	for _, l := range strings.Split(output, "\n") {
		if !strings.HasPrefix(l, "[PRB:") {
			continue
		}
		res, err := grbl.ParseProbe(l)
		if err == nil {
			return res
		}
	}
	return nil
}

func (a *API) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.WithError(err).Error("encode response")
	}
}

func (a *API) run(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out := a.c.Exec(line)
		_, err = w.Write([]byte(out))
		if err != nil {
			a.log.WithError(err).Warn("write run output")
			return
		}
		if strings.HasPrefix(lastLine(out), "error:") {
			// the rest depends on this line
			return
		}
	}
}

func lastLine(s string) string {
	s = strings.TrimSuffix(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// probeRequest builds a straight probe command from the form values axis
// (X, Y or Z, default Z), distance, feedRate (mm/min) and strict.
func probeRequest(req *http.Request) (string, error) {
	axis := strings.ToUpper(req.FormValue("axis"))
	if axis == "" {
		axis = "Z"
	}
	if len(axis) != 1 || !strings.Contains("XYZ", axis) {
		return "", errors.Errorf("invalid axis %q", axis)
	}

	dist, err := strconv.ParseFloat(req.FormValue("distance"), 64)
	if err != nil {
		return "", errors.Wrap(err, "distance")
	}

	code := "G38.3"
	if req.FormValue("strict") == "1" {
		code = "G38.2"
	}
	line := fmt.Sprintf("%s %s%s", code, axis, strconv.FormatFloat(dist, 'f', -1, 64))

	if f := req.FormValue("feedRate"); f != "" {
		rate, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return "", errors.Wrap(err, "feedRate")
		}
		if rate <= 0 {
			return "", errors.New("feedRate must be positive")
		}
		line += " F" + strconv.FormatFloat(rate, 'f', -1, 64)
	}
	return line, nil
}

func (a *API) probe(w http.ResponseWriter, req *http.Request) {
	line, err := probeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := a.c.Exec(line)
	res := findProbe(out)
	if res == nil {
		// rejected before moving
		a.log.WithField("output", out).Warn("probe rejected")
		http.Error(w, strings.TrimSpace(out), http.StatusConflict)
		return
	}

	a.writeJSON(w, ProbeResponse{
		ProbeResult: *res,
		Alarm:       strings.Contains(out, "ALARM:"),
		Output:      out,
	})
}

type statusResponse struct {
	State string
	MPos  coord.Point
	WCO   coord.Point
	WPos  coord.Point
}

func (a *API) status(w http.ResponseWriter, req *http.Request) {
	stat := a.c.Status()
	a.writeJSON(w, statusResponse{
		State: stat.State,
		MPos:  stat.MPos,
		WCO:   stat.WCO,
		WPos:  stat.MPos.Sub(stat.WCO),
	})
}

// websocket is a console: every text message is a line, answered with its
// output. A message of ? is answered with a status report.
func (a *API) websocket(w http.ResponseWriter, req *http.Request) {
	conn, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.log.WithError(err).Debug("websocket read")
			}
			return
		}

		line := strings.TrimSpace(string(msg))
		var out string
		if line == "?" {
			out = a.c.Status().String() + "\n"
		} else {
			out = a.c.Exec(line)
		}

		err = conn.WriteMessage(websocket.TextMessage, []byte(out))
		if err != nil {
			a.log.WithError(err).Debug("websocket write")
			return
		}
	}
}
