package internal

import (
	"net"
	"net/http"
	"strings"

	"github.com/sebest/xff"
)

func publicIP(sip string) bool {
	ip := net.ParseIP(sip)
	if ip == nil {
		return false
	}
	return !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsUnspecified()
}

// RemoteXRealIP fills in the X-Real-Ip header from the network socket, for
// when formgate is exposed directly instead of behind a reverse proxy.
// RemoteAddr carries no address on unix sockets, so those are left alone.
func RemoteXRealIP(useRemoteAddress bool, bindNetwork string, next http.Handler) http.Handler {
	if !useRemoteAddress || bindNetwork == "unix" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil {
			r.Header.Set("X-Real-Ip", host)
		}
		next.ServeHTTP(w, r)
	})
}

// XForwardedForToXRealIP sets X-Real-Ip to the rightmost public hop of
// X-Forwarded-For when the reverse proxy didn't set X-Real-Ip itself.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-Ip") == "" {
			if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
				if ip := xff.Parse(fwd); ip != "" {
					r.Header.Set("X-Real-Ip", ip)
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// XForwardedForUpdate strips private addresses out of X-Forwarded-For so
// request logs only carry routable hops.
func XForwardedForUpdate(stripPrivate bool, next http.Handler) http.Handler {
	if !stripPrivate {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fwd := r.Header.Get("X-Forwarded-For")
		if fwd == "" {
			next.ServeHTTP(w, r)
			return
		}

		var keep []string
		for _, hop := range strings.Split(fwd, ",") {
			hop = strings.TrimSpace(hop)
			if publicIP(hop) {
				keep = append(keep, hop)
			}
		}

		if len(keep) == 0 {
			r.Header.Del("X-Forwarded-For")
		} else {
			r.Header.Set("X-Forwarded-For", strings.Join(keep, ", "))
		}

		next.ServeHTTP(w, r)
	})
}
