package inventory

import (
	"io"
	"net/http"

	"github.com/edgeflare/inventory/pkg/httputil"
)

const maxBodyBytes = 1 << 20

// Routes registers the inventory API and a health endpoint on r.
func (s *Service) Routes(r *httputil.Router) {
	r.HandleFunc("POST /inventory", s.handleCreate)
	r.HandleFunc("GET /inventory", s.handleList)
	r.HandleFunc("GET /inventory/{id}", s.handleGet)
	r.HandleFunc("DELETE /inventory/{id}", s.handleDelete)
	r.HandleFunc("PUT /inventory/{id}", s.handleUpdate)
	r.HandleFunc("GET /healthz", handleHealthz)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		// an unreadable body takes the same path as an undecodable one
		body = []byte{'{'}
	}
	write(w, s.Create(r.Context(), body))
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	write(w, s.List(r.Context()))
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	write(w, s.Get(r.Context(), r.PathValue("id")))
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	write(w, s.Delete(r.Context(), r.PathValue("id")))
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		body = []byte{'{'}
	}
	write(w, s.Update(r.Context(), r.PathValue("id"), body))
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func write(w http.ResponseWriter, resp Response) {
	httputil.Blob(w, resp.StatusCode, []byte(resp.Body), "application/json")
}
