package runner

import (
	"encoding/base64"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
)

// buildRequest renders a request spec against the variable store into the
// wire request handed to the transport.
func buildRequest(spec *ast.RequestSpec, store *vars.Store, baseDir string) (*http.Request, *RunError) {
	rawURL, err := vars.Render(spec.URL, store)
	if err != nil {
		return nil, runtimeError(spec.Pos, "request URL: %v", err)
	}

	if len(spec.QueryParams) > 0 {
		values := url.Values{}
		for _, p := range spec.QueryParams {
			v, err := vars.Render(p.Value, store)
			if err != nil {
				return nil, runtimeError(p.Pos, "query parameter %s: %v", p.Name, err)
			}
			values.Add(p.Name, v)
		}
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + values.Encode()
	}

	req := &http.Request{Method: spec.Method, URL: rawURL}

	for _, h := range spec.Headers {
		v, err := vars.Render(h.Value, store)
		if err != nil {
			return nil, runtimeError(h.Pos, "header %s: %v", h.Name, err)
		}
		req.Headers = req.Headers.Add(h.Name, v)
	}

	if spec.BasicAuth != nil {
		user, err := vars.Render(spec.BasicAuth.User, store)
		if err != nil {
			return nil, runtimeError(spec.BasicAuth.Pos, "basic auth user: %v", err)
		}
		pass, err := vars.Render(spec.BasicAuth.Password, store)
		if err != nil {
			return nil, runtimeError(spec.BasicAuth.Pos, "basic auth password: %v", err)
		}
		cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		req.Headers = req.Headers.Add("Authorization", "Basic "+cred)
	}

	if len(spec.FormParams) > 0 {
		form := url.Values{}
		for _, p := range spec.FormParams {
			v, err := vars.Render(p.Value, store)
			if err != nil {
				return nil, runtimeError(p.Pos, "form parameter %s: %v", p.Name, err)
			}
			form.Add(p.Name, v)
		}
		req.Body = []byte(form.Encode())
		if _, ok := req.Headers.Get("Content-Type"); !ok {
			req.Headers = req.Headers.Add("Content-Type", "application/x-www-form-urlencoded")
		}
		return req, nil
	}

	if spec.Body != nil {
		body, contentType, rerr := buildBody(spec.Body, store, baseDir)
		if rerr != nil {
			return nil, rerr
		}
		req.Body = body
		if contentType != "" {
			if _, ok := req.Headers.Get("Content-Type"); !ok {
				req.Headers = req.Headers.Add("Content-Type", contentType)
			}
		}
	}
	return req, nil
}

func buildBody(body *ast.BodySpec, store *vars.Store, baseDir string) ([]byte, string, *RunError) {
	switch body.Kind {
	case ast.BodyText:
		text, err := vars.Render(body.Text, store)
		if err != nil {
			return nil, "", runtimeError(body.Pos, "request body: %v", err)
		}
		return []byte(text), "", nil
	case ast.BodyJSON:
		text, err := vars.Render(body.Text, store)
		if err != nil {
			return nil, "", runtimeError(body.Pos, "request body: %v", err)
		}
		return []byte(text), "application/json", nil
	case ast.BodyBase64:
		payload, err := vars.Render(body.Text, store)
		if err != nil {
			return nil, "", runtimeError(body.Pos, "request body: %v", err)
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", runtimeError(body.Pos, "invalid base64 body: %v", err)
		}
		return raw, "", nil
	case ast.BodyFile:
		path := body.File
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, "", runtimeError(body.Pos, "reading body file: %v", err)
		}
		return raw, "", nil
	default:
		return nil, "", nil
	}
}
