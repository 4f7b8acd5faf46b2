package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "framephase API",
		Version:     "v1",
		Description: "Phased frame update scheduler: live block state and recorded frame traces",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health, tick count and job pool statistics"},
			{"/api/v1/blocks", []string{"GET"}, "Scheduling state of every block after the last tick"},
			{"/api/v1/blocks/{index}", []string{"GET"}, "Single block state with its rows"},
			{"/api/v1/runs", []string{"GET"}, "Recorded scheduler runs, newest first"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run with event counts per kind"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Frame trace events; filter with ?block and ?kind"},
		},
	})
}
