package ppn

// HttpResponse is the subset of an HTTP exchange the control plane consumes.
type HttpResponse struct {
	Code     int
	Message  string
	JSONBody []byte
}

// HttpFetcher posts a JSON document to a control-plane endpoint. The fetcher
// blocks; control-plane components call it off the session looper.
type HttpFetcher interface {
	PostJSON(url string, body []byte) (HttpResponse, error)
}

// TokenProvider supplies the bearer token attached to authentication
// requests.
type TokenProvider interface {
	OAuthToken() (string, error)
}
