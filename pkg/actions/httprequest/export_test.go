package httprequest

import "net/http"

// WithClient swaps the HTTP client used by the action.
func (a *Action) WithClient(client *http.Client) *Action {
	a.client = client

	return a
}
