package broker

import (
	"encoding/json"
	"io"
	"net/http"

	"community-realtime/internal/realtime"
)

const maxPublishBody = 1 << 20

// HandlePublish accepts a single update as the POST body and fans it out.
func (b *Broker) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBody))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}

	u, err := realtime.DecodeUpdate(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n := b.Publish(u)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"delivered": n})
}

// Routes registers the broker endpoints on mux and returns their patterns.
func (b *Broker) Routes(mux *http.ServeMux) []string {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"/ws", b.ServeWS},
		{"/publish", b.HandlePublish},
		{"/healthz", handleHealthz},
	}

	patterns := make([]string, 0, len(routes))
	for _, r := range routes {
		mux.HandleFunc(r.pattern, r.handler)
		patterns = append(patterns, r.pattern)
	}
	return patterns
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
