package portal

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"lmsportal/internal/auth"
	"lmsportal/internal/dashboard"
	"lmsportal/internal/lmsapi"
)

// viewCache keeps one dashboard per browser session so overlapping refreshes
// from the same browser share a generation counter. Entries unused for ttl are
// swept on the next put.
type viewCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	views map[string]cachedView
}

type cachedView struct {
	token string
	view  dashboard.View
	seen  time.Time
}

const defaultViewTTL = 24 * time.Hour

func newViewCache(ttl time.Duration) *viewCache {
	if ttl <= 0 {
		ttl = defaultViewTTL
	}
	return &viewCache{ttl: ttl, now: time.Now, views: make(map[string]cachedView)}
}

func (vc *viewCache) get(sid, token string) (dashboard.View, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	cv, ok := vc.views[sid]
	if !ok || cv.token != token {
		return nil, false
	}
	now := vc.now()
	if now.Sub(cv.seen) > vc.ttl {
		delete(vc.views, sid)
		return nil, false
	}
	cv.seen = now
	vc.views[sid] = cv
	return cv.view, true
}

func (vc *viewCache) put(sid, token string, v dashboard.View) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	now := vc.now()
	for id, cv := range vc.views {
		if now.Sub(cv.seen) > vc.ttl {
			delete(vc.views, id)
		}
	}
	vc.views[sid] = cachedView{token: token, view: v, seen: now}
}

func (vc *viewCache) drop(sid string) {
	vc.mu.Lock()
	delete(vc.views, sid)
	vc.mu.Unlock()
}

func (s *Server) deps() dashboard.Deps {
	return dashboard.Deps{API: s.opts.API, Notifier: s.opts.Notifier, Log: s.log}
}

// view returns the session's dashboard, asking the API who the user is the
// first time. ok is false when a response was already written.
func (s *Server) view(c *gin.Context) (dashboard.View, bool) {
	sid := s.sessionID(c)
	token := auth.Credential(c)
	if v, ok := s.views.get(sid, token); ok {
		return v, true
	}
	user, err := s.opts.API.Me(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err, "Could not load your account")
		return nil, false
	}
	v := dashboard.For(s.deps(), token, user)
	s.views.put(sid, token, v)
	return v, true
}

func (s *Server) studentView(c *gin.Context) (*dashboard.StudentView, bool) {
	v, ok := s.view(c)
	if !ok {
		return nil, false
	}
	sv, ok := v.(*dashboard.StudentView)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "students only"})
		return nil, false
	}
	return sv, true
}

func (s *Server) teacherView(c *gin.Context) (*dashboard.TeacherView, bool) {
	v, ok := s.view(c)
	if !ok {
		return nil, false
	}
	tv, ok := v.(*dashboard.TeacherView)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "teachers only"})
		return nil, false
	}
	return tv, true
}

// fail answers an action error. A rejected credential ends the session and
// goes back to the login view.
func (s *Server) fail(c *gin.Context, err error, fallback string) {
	if errors.Is(err, lmsapi.ErrUnauthorized) {
		s.views.drop(s.sessionID(c))
		auth.Logout(c, nil)
		return
	}
	switch {
	case errors.Is(err, dashboard.ErrEmptySubmission),
		errors.Is(err, dashboard.ErrNoCourseSelected),
		errors.Is(err, dashboard.ErrNoAssignmentSelected):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var apiErr *lmsapi.APIError
	if errors.As(err, &apiErr) && apiErr.IsValidation() {
		c.JSON(apiErr.Status, gin.H{"error": lmsapi.Message(err, fallback)})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": fallback})
}
