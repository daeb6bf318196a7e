package auth

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lmsportal/internal/session"
)

const (
	credentialKey = "credential"
	storeKey      = "session_store"

	// LoginPath is where every unauthenticated request ends up.
	LoginPath = "/login"
)

// StoreResolver returns the credential store of the request's browser session.
type StoreResolver func(c *gin.Context) session.Store

// RequireCredential loads the session credential and stores it in the gin
// context. Requests without one are redirected to the login view.
func RequireCredential(storeFor StoreResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := storeFor(c)
		tok, ok, err := store.Get(c.Request.Context())
		if err != nil {
			log.Printf("auth: session read failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
			return
		}
		if !ok {
			c.Redirect(http.StatusSeeOther, LoginPath)
			c.Abort()
			return
		}
		c.Set(credentialKey, tok)
		c.Set(storeKey, store)
		c.Next()
	}
}

// Credential returns the token placed by RequireCredential.
func Credential(c *gin.Context) string {
	return c.GetString(credentialKey)
}

// Logout clears the credential of the request's session and redirects to login.
// It is also what happens when the LMS API rejects the credential.
func Logout(c *gin.Context, store session.Store) {
	if store == nil {
		if v, ok := c.Get(storeKey); ok {
			store, _ = v.(session.Store)
		}
	}
	if store != nil {
		if err := store.Clear(c.Request.Context()); err != nil {
			log.Printf("auth: session clear failed: %v", err)
		}
	}
	c.Redirect(http.StatusSeeOther, LoginPath)
	c.Abort()
}
