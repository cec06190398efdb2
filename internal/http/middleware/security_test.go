package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecure(opt SecurityOptions, prep func(*http.Request), pre gin.HandlerFunc) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders(t *testing.T) {
	overTLS := func(r *http.Request) { r.TLS = &tls.ConnectionState{} }
	viaProxy := func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }

	cases := []struct {
		name   string
		opt    SecurityOptions
		prep   func(*http.Request)
		hsts   string
		policy bool
		store  bool
	}{
		{name: "baseline only", opt: SecurityOptions{}},
		{name: "hsts ignored over plain http", opt: SecurityOptions{EnableHSTS: true}},
		{
			name: "hsts over tls with policy and no-store",
			opt:  SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, NoStore: true, EnablePolicy: true},
			prep: overTLS, hsts: "max-age=86400; includeSubDomains; preload", policy: true, store: true,
		},
		{
			name: "hsts default max age behind proxy",
			opt:  SecurityOptions{EnableHSTS: true},
			prep: viaProxy, hsts: "max-age=15552000; includeSubDomains; preload",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecure(tc.opt, tc.prep, nil)
			if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
				t.Fatalf("baseline headers missing: %#v", h)
			}
			if got := h.Get("Strict-Transport-Security"); got != tc.hsts {
				t.Fatalf("HSTS = %q, want %q", got, tc.hsts)
			}
			if got := h.Get("X-Permitted-Cross-Domain-Policies") == "none"; got != tc.policy {
				t.Fatalf("policy headers present=%v, want %v", got, tc.policy)
			}
			if got := h.Get("Cache-Control") == "no-store"; got != tc.store {
				t.Fatalf("no-store present=%v, want %v", got, tc.store)
			}
		})
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	cases := map[string]struct{ existing, want string }{
		"empty":     {"", "X-Request-ID"},
		"append":    {"ETag", "ETag, X-Request-ID"},
		"no repeat": {"X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := serveSecure(SecurityOptions{}, nil, func(c *gin.Context) {
				c.Header("X-Request-ID", "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			})
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNoStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(SecurityOptions{}))
	r.GET("/duyurular", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/tahsilat", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/duyurular", nil))
	if w.Header().Get("Cache-Control") != "" {
		t.Fatalf("public route should be cacheable, got %q", w.Header().Get("Cache-Control"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tahsilat", nil))
	h := w.Header()
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing no-store headers: %#v", h)
	}
}
