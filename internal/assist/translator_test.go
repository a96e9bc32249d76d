package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/types"
)

var fields = []types.FieldDescriptor{
	{Name: "spend", Type: types.FieldNumber},
	{Name: "city", Type: types.FieldString},
}

const generatedTree = `{"tree": {"id": "root", "logic": "AND", "children": [
	{"id": "r1", "field": "spend", "operator": "greaterThan", "value": 500}
]}}`

func TestHTTPTranslator_Translate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "customers who spent over 500" {
			t.Errorf("request text = %q", req.Text)
		}
		if len(req.Fields) != 2 {
			t.Errorf("request fields = %d, want 2", len(req.Fields))
		}
		w.Write([]byte(generatedTree))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, fields, nil)
	node, err := tr.Translate(context.Background(), "customers who spent over 500")
	require.NoError(t, err)

	g, ok := node.(*types.RuleGroup)
	require.True(t, ok, "Translate() returned %T, want *types.RuleGroup", node)
	require.Len(t, g.Children, 1)
	assert.Equal(t, "spend", g.Children[0].(*types.Rule).Field)
}

func TestHTTPTranslator_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(generatedTree))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, fields, nil, WithRetries(2, time.Millisecond))
	_, err := tr.Translate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPTranslator_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "text too long", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, fields, nil, WithRetries(3, time.Millisecond))
	_, err := tr.Translate(context.Background(), "anything")
	assert.ErrorContains(t, err, "text too long")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPTranslator_MalformedTree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tree": {"id": "x"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPTranslator(srv.URL, fields, nil).Translate(context.Background(), "anything")
	assert.ErrorIs(t, err, types.ErrMalformedNode)
}

// TestHTTPTranslator_OutputIsRevalidated feeds generator output through the
// engine: a tree naming an unknown field is reported, not trusted.
func TestHTTPTranslator_OutputIsRevalidated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tree": {"id": "r1", "field": "creditScore", "operator": "greaterThan", "value": 700}}`))
	}))
	defer srv.Close()

	engine := rules.NewEngine(rules.MustCatalog(fields), rules.Options{}, nil)
	tree, seg, err := engine.CompileText(context.Background(), NewHTTPTranslator(srv.URL, fields, nil), "good credit")

	require.Error(t, err)
	assert.Nil(t, seg)
	assert.NotNil(t, tree)

	var verrs rules.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, rules.KindUnknownField, verrs[0].Kind)
}

func TestHTTPTranslator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	engine := rules.NewEngine(rules.MustCatalog(fields), rules.Options{}, nil)
	_, _, err := engine.CompileText(context.Background(), NewHTTPTranslator(url, fields, nil, WithRetries(0, 0)), "x")
	assert.ErrorIs(t, err, types.ErrTranslatorUnavailable)
}
