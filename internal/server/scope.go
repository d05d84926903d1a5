package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/coursereel/internal/scope"
)

// Headers set by the identity proxy in front of the server.
const (
	HeaderCreatorType  = "X-Creator-Type"
	HeaderCreatorDepts = "X-Creator-Depts"
	HeaderCreatorName  = "X-Creator-Name"
)

const scopeKey = "creatorScope"

// ScopeFromHeaders builds the caller's authoring scope. The name may be
// percent-encoded so non-ASCII names survive header transport.
func ScopeFromHeaders(h http.Header) (scope.Scope, bool) {
	typ, ok := scope.ParseCreatorType(h.Get(HeaderCreatorType))
	if !ok {
		return scope.Scope{}, false
	}
	name := h.Get(HeaderCreatorName)
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	if typ == scope.GlobalCreator {
		return scope.Global(name), true
	}
	var depts []string
	for _, d := range strings.Split(h.Get(HeaderCreatorDepts), ",") {
		if d = strings.TrimSpace(d); d != "" {
			depts = append(depts, d)
		}
	}
	return scope.Dept(name, depts...), true
}

// requireScope rejects requests without a creator scope.
func requireScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := ScopeFromHeaders(c.Request.Header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "creator scope headers are required"})
			return
		}
		c.Set(scopeKey, sc)
		c.Next()
	}
}

func scopeOf(c *gin.Context) scope.Scope {
	if v, ok := c.Get(scopeKey); ok {
		if sc, ok := v.(scope.Scope); ok {
			return sc
		}
	}
	return scope.Scope{}
}
