// Package portal is the web front end. It owns the browser session, serves
// the login, signup, profile, dashboard and chat views as JSON, and relays the
// chat websocket to the push channel.
package portal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lmsportal/internal/auth"
	"lmsportal/internal/chat"
	"lmsportal/internal/dashboard"
	"lmsportal/internal/digest"
	"lmsportal/internal/httpmiddleware"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/session"
)

// SessionCookie carries the browser session id.
const SessionCookie = "lms_sid"

// Options wires the portal to its collaborators.
type Options struct {
	API       *lmsapi.Client
	Sessions  session.Factory
	Notifier  dashboard.Notifier
	Ledger    digest.Ledger
	Log       *logsvc.Logger
	SocketURL string
	// Relay, when set, is served at /chat/relay as a local push channel.
	Relay           *chat.Hub
	CORSOrigins     []string
	RateLimitPerMin int
	SecureCookies   bool
	Health          map[string]func(ctx context.Context) bool
	// ViewTTL drops a cached dashboard unused for this long. Zero means a day.
	ViewTTL time.Duration
}

// Server holds the portal state shared by all requests.
type Server struct {
	opts     Options
	log      *logsvc.Logger
	views    *viewCache
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	s := &Server{opts: opts, log: opts.Log, views: newViewCache(opts.ViewTTL)}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	return s
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(s.opts.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)
	if s.opts.Relay != nil {
		r.GET("/chat/relay", gin.WrapH(s.opts.Relay))
	}

	r.GET("/", s.index)
	limit := httpmiddleware.NewTokenBucket(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin).Middleware()
	r.GET("/login", s.loginForm)
	r.POST("/login", limit, s.login)
	r.GET("/signup", s.signupForm)
	r.POST("/signup", limit, s.signup)
	r.POST("/logout", s.logout)

	a := r.Group("", auth.RequireCredential(s.storeFor))
	a.GET("/profile", s.profile)
	a.POST("/profile", s.updateProfile)
	a.GET("/chat", s.chat)

	d := a.Group("/dashboard")
	d.GET("", s.dashboard)
	d.POST("/courses/:id/enroll", s.enroll)
	d.POST("/courses/:id/unenroll", s.unenroll)
	d.POST("/assignments/:id/submit", s.submit)
	d.GET("/digests", s.digests)

	d.POST("/courses", s.createCourse)
	d.GET("/courses/:id/students", s.courseStudents)
	d.GET("/courses/:id/assignments", s.courseAssignments)
	d.POST("/courses/:id/assignments", s.createAssignment)
	d.GET("/assignments/:id/submissions", s.submissions)
	d.POST("/submissions/:id/grade", s.grade)
	return r
}

// sessionID returns the browser session id, issuing a new cookie when the
// request carries none.
func (s *Server) sessionID(c *gin.Context) string {
	if sid := c.GetString(SessionCookie); sid != "" {
		return sid
	}
	if sid, err := c.Cookie(SessionCookie); err == nil && sid != "" {
		return sid
	}
	return s.newSession(c)
}

// newSession issues a fresh session id for the rest of the request and the browser.
func (s *Server) newSession(c *gin.Context) string {
	sid := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sid, 0, "/", "", s.opts.SecureCookies, true)
	c.Set(SessionCookie, sid)
	return sid
}

func (s *Server) storeFor(c *gin.Context) session.Store {
	return s.opts.Sessions(s.sessionID(c))
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range s.opts.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.opts.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"links": gin.H{
			"login":     "/login",
			"signup":    "/signup",
			"dashboard": "/dashboard",
			"profile":   "/profile",
			"chat":      "/chat",
		},
	})
}
