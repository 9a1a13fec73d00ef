package httputil

import (
	"net/http"

	"github.com/pitabwire/frame/security"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
)

// AuthMiddleware wraps an http.Handler with frame's authentication
// middleware, validating bearer tokens on REST endpoints.
func AuthMiddleware(handler http.Handler, authenticator security.Authenticator) http.Handler {
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}
