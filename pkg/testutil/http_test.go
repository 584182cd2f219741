package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "algodid/pkg/domain-errors"
	"algodid/pkg/platform/httputil"
)

func TestRequestHelpers(t *testing.T) {
	var gotBody, gotType string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType = string(b), r.Header.Get("Content-Type")
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no document"))
	})

	rr := DoRequest(h, NewJSONRequest(t, http.MethodPost, "/dids", map[string]string{"mnemonic": "x"}))

	require.JSONEq(t, `{"mnemonic":"x"}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}
