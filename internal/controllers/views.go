package controllers

import (
	"html/template"
)

// Template names rendered by the controllers.
const (
	consentTemplate = "consent.html"
	errorTemplate   = "error.html"
	loginTemplate   = "login.html"
)

const viewsSource = `
{{define "consent.html"}}<!DOCTYPE html>
<html>
<head><title>Authorize {{.ClientName}}</title></head>
<body>
  <h1>{{.ClientName}} is requesting access</h1>
  {{if .Scopes}}
  <p>Requested scopes:</p>
  <ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>
  {{else}}
  <p>No specific scopes were requested.</p>
  {{end}}
  <form method="POST" action="/oauth2/authorize">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <input type="hidden" name="response_type" value="{{.ResponseType}}">
    <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
    <input type="hidden" name="scope" value="{{.Scope}}">
    <input type="hidden" name="state" value="{{.State}}">
    <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
    <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
    <button type="submit" name="authorize" value="yes">Approve</button>
    <button type="submit" name="authorize" value="no">Deny</button>
  </form>
</body>
</html>{{end}}

{{define "error.html"}}<!DOCTYPE html>
<html>
<head><title>Authorization error</title></head>
<body>
  <h1>{{.Error}}</h1>
  <p>{{.Description}}</p>
</body>
</html>{{end}}

{{define "login.html"}}<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
  <h1>Sign in</h1>
  {{if .Error}}<p>{{.Error}}</p>{{end}}
  <form method="POST" action="/login">
    <input type="hidden" name="redirect" value="{{.Redirect}}">
    <label>Email <input type="email" name="email" value="{{.Email}}"></label>
    <label>Password <input type="password" name="password"></label>
    <button type="submit">Sign in</button>
  </form>
</body>
</html>{{end}}
`

// Templates parses the HTML views for router.SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.New("views").Parse(viewsSource))
}
