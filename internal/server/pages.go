package server

import (
	"html/template"
	"net/http"

	"github.com/bnema/modelgw/internal/application"
)

// callbackPage is what the operator's browser shows after the provider
// redirect. Provider-supplied error text passes through html/template,
// so it is always escaped.
var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: system-ui, sans-serif; max-width: 36rem; margin: 4rem auto;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Detail}}<pre style="white-space: pre-wrap; background: #f4f4f4; padding: 1rem;">{{.Detail}}</pre>{{end}}
<p>You can close this tab.</p>
</body>
</html>
`))

type callbackPageData struct {
	Title   string
	Message string
	Detail  string
}

func renderCallbackPage(w http.ResponseWriter, result application.CallbackResult) {
	var (
		status int
		data   callbackPageData
	)

	switch result.Outcome {
	case application.OutcomeCompleted:
		status = http.StatusOK
		data = callbackPageData{
			Title:   "Connected",
			Message: "Authorization with " + string(result.Provider) + " completed. The gateway can now use this account.",
		}

	case application.OutcomeExpired:
		status = http.StatusBadRequest
		data = callbackPageData{
			Title:   "Login attempt expired",
			Message: "This login link was already used or timed out. Start the flow again from the dashboard.",
		}

	default:
		status = http.StatusBadRequest
		data = callbackPageData{
			Title:   "Authorization failed",
			Message: "The provider did not complete the authorization.",
		}
		if result.Err != nil {
			data.Detail = result.Err.Error()
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, data)
}
