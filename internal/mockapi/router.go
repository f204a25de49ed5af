package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/five82/roomwatch/internal/backend"
)

type ctxKey struct{}

// Server exposes a Store over the backend's REST surface.
type Server struct {
	store *Store
	loc   *time.Location
}

// NewServer wraps store. Dates in paths are read in loc (time.Local if nil).
func NewServer(store *Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{store: store, loc: loc}
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireToken)

	api.HandleFunc("/user/email/{email}", s.userIDByEmail).Methods(http.MethodGet)
	api.HandleFunc("/user/phone", s.userPhone).Methods(http.MethodGet)
	api.HandleFunc("/user/{id}/phone", s.updatePhone).Methods(http.MethodPut)
	api.HandleFunc("/user/{id}", s.user).Methods(http.MethodGet)

	api.HandleFunc("/room/", s.rooms).Methods(http.MethodGet)
	api.HandleFunc("/room/available", s.availableRooms).Methods(http.MethodGet)
	api.HandleFunc("/room/assign", s.assignRoom).Methods(http.MethodPost)
	api.HandleFunc("/room/{roomId}/remove/{userId}", s.removeUser).Methods(http.MethodDelete)
	api.HandleFunc("/room/{roomId}/sensors", s.roomSensors).Methods(http.MethodGet)

	api.HandleFunc("/sensor/", s.sensors).Methods(http.MethodGet)
	api.HandleFunc("/sensor/last/details/{id}", s.lastDetails).Methods(http.MethodGet)
	api.HandleFunc("/sensor/{id}/data/{date}", s.sensorData).Methods(http.MethodGet)
	api.HandleFunc("/sensor/{id}/status", s.sensorStatus).Methods(http.MethodPut)
	api.HandleFunc("/sensor/{id}", s.sensor).Methods(http.MethodGet)
	api.HandleFunc("/sensor/{roomId}", s.addSensor).Methods(http.MethodPost)

	api.HandleFunc("/alerts/{roomId}/data/{date}", s.alertsByDate).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{roomId}", s.alerts).Methods(http.MethodGet)

	api.HandleFunc("/custom-alert/", s.customAlerts).Methods(http.MethodGet)
	api.HandleFunc("/custom-alert/", s.createCustomAlert).Methods(http.MethodPost)
	api.HandleFunc("/custom-alert/{id}", s.customAlert).Methods(http.MethodGet)
	api.HandleFunc("/custom-alert/{id}", s.updateCustomAlert).Methods(http.MethodPut)
	api.HandleFunc("/custom-alert/{id}", s.deleteCustomAlert).Methods(http.MethodDelete)

	return r
}

// Handler returns the router wrapped with panic recovery and Apache-style
// request logging to logOut.
func (s *Server) Handler(logOut io.Writer) http.Handler {
	var h http.Handler = s.Router()
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	if logOut != nil {
		h = handlers.LoggingHandler(logOut, h)
	}
	return h
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		userID, ok := s.store.Authenticate(strings.TrimSpace(token))
		if !ok {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Params struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		} `json:"params"`
	}
	if !decode(w, r, &body) {
		return
	}
	resp, err := s.store.Login(body.Params.Email, body.Params.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}
	resp, err := s.store.Register(body.Name, body.Email, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.User(mux.Vars(r)["id"])
	respond(w, u, err)
}

func (s *Server) userIDByEmail(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.UserIDByEmail(mux.Vars(r)["email"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeText(w, id)
}

func (s *Server) userPhone(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.User(r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeText(w, u.Phone)
}

func (s *Server) updatePhone(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}
	if err := s.store.SetPhone(mux.Vars(r)["id"], phone); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, "Phone number updated")
}

func (s *Server) rooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Rooms(userFrom(r)))
}

func (s *Server) availableRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.AvailableRooms())
}

func (s *Server) assignRoom(w http.ResponseWriter, r *http.Request) {
	var req backend.AssignRoomRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = userFrom(r)
	}
	room, err := s.store.AssignRoom(req)
	respond(w, room, err)
}

func (s *Server) removeUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.RemoveUser(vars["roomId"], vars["userId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) roomSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.store.RoomSensors(mux.Vars(r)["roomId"])
	respond(w, sensors, err)
}

func (s *Server) sensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Sensors())
}

func (s *Server) sensor(w http.ResponseWriter, r *http.Request) {
	sn, err := s.store.Sensor(mux.Vars(r)["id"])
	respond(w, sn, err)
}

func (s *Server) addSensor(w http.ResponseWriter, r *http.Request) {
	var in backend.Sensor
	if !decode(w, r, &in) {
		return
	}
	sn, err := s.store.AddSensor(mux.Vars(r)["roomId"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

func (s *Server) sensorStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.store.SetSensorActive(mux.Vars(r)["id"], body.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sensorData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	day, ok := s.parseDay(w, vars["date"])
	if !ok {
		return
	}
	data, err := s.store.SensorData(vars["id"], day)
	respond(w, data, err)
}

func (s *Server) lastDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.LastDetails(mux.Vars(r)["id"])
	respond(w, d, err)
}

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.Alerts(mux.Vars(r)["roomId"], time.Time{})
	respond(w, alerts, err)
}

func (s *Server) alertsByDate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	day, ok := s.parseDay(w, vars["date"])
	if !ok {
		return
	}
	alerts, err := s.store.Alerts(vars["roomId"], day)
	respond(w, alerts, err)
}

func (s *Server) customAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.CustomAlerts(userFrom(r)))
}

func (s *Server) customAlert(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.CustomAlert(mux.Vars(r)["id"])
	respond(w, rule, err)
}

func (s *Server) createCustomAlert(w http.ResponseWriter, r *http.Request) {
	var rule backend.CustomAlert
	if !decode(w, r, &rule) {
		return
	}
	if rule.UserID == "" {
		rule.UserID = userFrom(r)
	}
	saved, err := s.store.SaveCustomAlert("", rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) updateCustomAlert(w http.ResponseWriter, r *http.Request) {
	var rule backend.CustomAlert
	if !decode(w, r, &rule) {
		return
	}
	saved, err := s.store.SaveCustomAlert(mux.Vars(r)["id"], rule)
	respond(w, saved, err)
}

func (s *Server) deleteCustomAlert(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteCustomAlert(mux.Vars(r)["id"])
	respond(w, deleted, err)
}

func (s *Server) parseDay(w http.ResponseWriter, raw string) (time.Time, bool) {
	day, err := time.ParseInLocation(backend.DateLayout, raw, s.loc)
	if err != nil {
		http.Error(w, "date must be yyyy-mm-dd", http.StatusBadRequest)
		return time.Time{}, false
	}
	return day, true
}

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errConflict):
		status = http.StatusConflict
	case errors.Is(err, errUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errInvalid):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
