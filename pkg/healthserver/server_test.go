package healthserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/admission-core/pkg/witness"
)

type fakeProvider struct {
	status Status
}

func (f fakeProvider) Status() Status {
	return f.status
}

func TestGetHealthz_ReturnsProviderSnapshot(t *testing.T) {
	provider := fakeProvider{status: Status{
		Breaker:    map[string]string{"scan": "closed"},
		IndexSizes: map[string]int{"patterns": 42},
		Witness:    witness.Status{BufferedEntries: 3, LastSeq: 3, LastLink: "abc"},
	}}

	s := New(provider)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, provider.status, got)
}
