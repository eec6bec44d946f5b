package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("instances do not share state", func(t *testing.T) {
		first := New()
		second := New()

		first.Dispatched.Add(3)

		assert.Contains(t, scrape(t, first), "secretary_dispatched_messages_total 3")
		assert.Contains(t, scrape(t, second), "secretary_dispatched_messages_total 0")
	})

	t.Run("handler exposes recorded values", func(t *testing.T) {
		m := New()
		m.Polls.WithLabelValues(OutcomeOK).Inc()
		m.IndexSize.Set(7)

		body := scrape(t, m)
		assert.Contains(t, body, `secretary_polls_total{outcome="ok"} 1`)
		assert.Contains(t, body, "secretary_index_entries 7")
	})
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
