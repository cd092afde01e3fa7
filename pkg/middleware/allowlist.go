package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartstore/pkg/httputil"
)

// RegisterPprof mounts the runtime profiling endpoints under /debug/pprof,
// reachable only from clients inside allowedCIDRs.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(allowedCIDRs, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist rejects with 403 every request whose remote address is outside
// cidrs. Unparsable prefixes are logged and skipped; an empty list denies all.
func IPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			logger.Warn("invalid allowlist CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if addr, err := netip.ParseAddr(host); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("access denied by IP allowlist",
				slog.String("ip", host),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "access restricted by IP allowlist"},
			})
		})
	}
}
