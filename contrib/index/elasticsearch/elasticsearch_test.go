package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

type fakeCluster struct {
	searches []map[string]any
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/segments/_search":
		body, _ := io.ReadAll(r.Body)
		var parsed map[string]any
		_ = json.Unmarshal(body, &parsed)
		f.searches = append(f.searches, parsed)
		_, _ = io.WriteString(w, `{"hits": {"hits": [
			{"_id": "msmarco_v2.1_doc_01_1#0_0", "_score": 7.5, "_source": {"title": "Hawaiian pizza", "segment": "Created in Chatham."}},
			{"_id": "msmarco_v2.1_doc_02_2#3_9", "_score": 3.25, "_source": {"title": "Chatham", "segment": "A town in Ontario."}}
		]}}`)
	case strings.HasPrefix(r.URL.Path, "/segments/_doc/"):
		id := strings.TrimPrefix(r.URL.Path, "/segments/_doc/")
		if id != "msmarco_v2.1_doc_01_1#0_0" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"found": false}`)
			return
		}
		_, _ = io.WriteString(w, `{"found": true, "_source": {"url": "https://a.example", "title": "Hawaiian pizza", "headings": "History", "segment": "Created in Chatham.", "start_char": 10, "end_char": 30}}`)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
	}
}

func newTestClient(t *testing.T, rm3 retrieval.RM3) (*Client, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)
	c, err := New(Config{Addresses: []string{srv.URL}, Index: "segments", RM3: rm3, Logger: logging.Discard()})
	require.NoError(t, err)
	return c, cluster
}

func TestSearchWithoutExpansion(t *testing.T) {
	c, cluster := newTestClient(t, retrieval.RM3{})
	hits, err := c.Search(context.Background(), "hawaiian pizza", 1000)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "msmarco_v2.1_doc_01_1#0_0", hits[0].DocID)
	require.InDelta(t, 7.5, hits[0].Score, 1e-9)
	require.Len(t, cluster.searches, 1)
	require.EqualValues(t, 1000, cluster.searches[0]["size"])
}

func TestSearchWithRM3IssuesFeedbackPass(t *testing.T) {
	c, cluster := newTestClient(t, retrieval.DefaultRM3())
	hits, err := c.Search(context.Background(), "hawaiian pizza", 50)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Len(t, cluster.searches, 2)
	require.EqualValues(t, 10, cluster.searches[0]["size"])
	require.EqualValues(t, 50, cluster.searches[1]["size"])

	query := cluster.searches[1]["query"].(map[string]any)
	should := query["bool"].(map[string]any)["should"].([]any)
	require.NotEmpty(t, should)
	var terms []string
	for _, clause := range should {
		mm := clause.(map[string]any)["multi_match"].(map[string]any)
		terms = append(terms, mm["query"].(string))
	}
	require.Contains(t, terms, "chatham")
	require.Contains(t, terms, "pizza")
}

func TestFetch(t *testing.T) {
	c, _ := newTestClient(t, retrieval.RM3{})
	seg, err := c.Fetch(context.Background(), "msmarco_v2.1_doc_01_1#0_0")
	require.NoError(t, err)
	require.Equal(t, "https://a.example", seg.URL)
	require.Equal(t, 10, seg.StartChar)

	_, err = c.Fetch(context.Background(), "msmarco_v2.1_doc_09_9#0_0")
	require.ErrorIs(t, err, errorspkg.ErrNotFound)
}

func TestNewRequiresIndex(t *testing.T) {
	_, err := New(Config{Addresses: []string{"http://localhost:9200"}})
	require.Error(t, err)
}
