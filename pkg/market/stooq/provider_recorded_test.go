package stooq

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	"eodprices/pkg/httpx"
)

// Records or replays a real daily CSV download.
// Skips when the cassette is absent and RECORD_CASSETTES != 1.
func TestProvider_Fetch_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "stooq_meta")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s.yaml", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	defer func() { _ = r.Stop() }()

	client := httpx.NewClient(httpx.WithHTTPClient(&http.Client{Transport: r}))
	p := NewProvider("stooq", client)
	obs, err := p.Fetch(context.Background(), "META")
	assert.NoError(t, err, "Fetch should not error")
	if assert.NotNil(t, obs) {
		assert.NotEmpty(t, obs.Date, "date should be set")
		assert.Greater(t, obs.Close, 0.0, "close should be positive")
		assert.NotEmpty(t, obs.History, "history should not be empty")
	}
}
