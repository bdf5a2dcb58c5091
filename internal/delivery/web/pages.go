package web

import (
	"fmt"
	"net/http"
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>Verified</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 10%">
<h1>&#9989; Verification complete</h1>
<p>Your account has been verified. You can close this tab and return to Discord.</p>
</body>
</html>`

var errorMessages = map[string]string{
	"expired":         "This verification link has expired or was already used. Run /verify again in Discord.",
	"already_linked":  "This identity is already linked to a different Discord account. Contact a server administrator.",
	"invalid_request": "The verification request was malformed. Run /verify again in Discord.",
	"server_error":    "Something went wrong on our side. Please try again in a few minutes.",
}

// errorPage is an Fprintf template; the literal percent in the CSS must stay
// escaped or the %s verb below misparses.
const errorPage = `<!DOCTYPE html>
<html>
<head><title>Verification failed</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 10%%">
<h1>&#10060; Verification failed</h1>
<p>%s</p>
</body>
</html>`

func (s *Server) handleSuccess(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(successPage))
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	msg, ok := errorMessages[r.URL.Query().Get("msg")]
	if !ok {
		msg = errorMessages["server_error"]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, errorPage, msg)
}
