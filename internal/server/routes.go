package server

import (
	"net/http"

	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

// buildMux wires every registered endpoint into a ServeMux, gating the
// ones that need a configured admin client behind requireInit.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)
	return mux
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.Services(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures a shop is configured before a
// setup operation runs. Returns 503 Service Unavailable otherwise.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := s.Services()
		if svc == nil || svc.Orchestrator == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		if cfg := s.configMgr.Get(); cfg.Shopify.Shop == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"no shop configured"}`))
			return
		}
		next(w, r)
	}
}
