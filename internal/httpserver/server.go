package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type Server struct {
	Mux *mux.Router
}

func New(requests *prometheus.CounterVec) *Server {
	m := mux.NewRouter()
	if requests != nil {
		m.Use(Metrics(requests))
	}
	return &Server{Mux: m}
}

// Handler is the router wrapped with request ids and access logging.
func (s *Server) Handler() http.Handler {
	return RequestID(Logging(s.Mux))
}
