package frappe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDocuments_QueryEncoding(t *testing.T) {
	var path string
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		writeJSON(w, 200, map[string]any{"data": []any{map[string]any{"name": "TEST-00001", "doctype": "Test"}}})
	})

	docs, err := c.ListDocuments(context.Background(), "Test", ListParams{
		Fields:  []string{"name", "test_prop"},
		Filters: []Filter{{DocType: "Test", Field: "test_prop", Operator: "=", Value: "TEST-00001"}},
		Limit:   20,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "TEST-00001", docs[0].Name())

	assert.Equal(t, "/api/resource/Test", path)
	assert.Equal(t, `["name","test_prop"]`, query["fields"])
	assert.Equal(t, `[["Test","test_prop","=","TEST-00001"]]`, query["filters"])
	assert.Equal(t, "20", query["limit_page_length"])
	assert.Equal(t, "0", query["limit_start"])
}

func TestListDocuments_Defaults(t *testing.T) {
	var query map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		writeJSON(w, 200, map[string]any{"data": []any{}})
	})

	docs, err := c.ListDocuments(context.Background(), "Lead Source", ListParams{})
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Len(t, docs, 0)
	assert.Equal(t, []string{`["name"]`}, query["fields"])
	assert.Equal(t, []string{`[]`}, query["filters"])
	assert.Equal(t, []string{"20"}, query["limit_page_length"])
	assert.Equal(t, []string{"0"}, query["limit_start"])
}

func TestListDocuments_MissingDataIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{})
	})
	docs, err := c.ListDocuments(context.Background(), "Test", ListParams{})
	assert.Nil(t, docs)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestListDocuments_EscapesDocType(t *testing.T) {
	var rawPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		writeJSON(w, 200, map[string]any{"data": []any{}})
	})
	_, err := c.ListDocuments(context.Background(), "Lead Source", ListParams{})
	require.NoError(t, err)
	assert.Equal(t, "/api/resource/Lead%20Source", rawPath)
}

func TestEffectiveFields(t *testing.T) {
	assert.Equal(t, []string{"name"}, EffectiveFields(nil))
	assert.Equal(t, []string{"name"}, EffectiveFields([]string{}))
	assert.Equal(t, []string{"a", "name"}, EffectiveFields([]string{"a"}))
	assert.Equal(t, []string{"name", "a"}, EffectiveFields([]string{"name", "a", "name"}))
	assert.Equal(t, []string{"*"}, EffectiveFields([]string{"*"}))

	in := []string{"a", "b"}
	EffectiveFields(in)
	assert.Equal(t, []string{"a", "b"}, in)
}

func TestEffectiveFields_NameExactlyOnce(t *testing.T) {
	inputs := [][]string{{"name", "name"}, {"x", "name", "x"}, {"x", "y"}, {"name"}}
	for _, in := range inputs {
		n := 0
		for _, f := range EffectiveFields(in) {
			if f == "name" {
				n++
			}
		}
		assert.Equal(t, 1, n, "input %v", in)
	}
}

func TestGetDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/resource/Test/TEST-00001", r.URL.Path)
		writeJSON(w, 200, map[string]any{"data": map[string]any{"name": "TEST-00001"}})
	})
	doc, err := c.GetDocument(context.Background(), "Test", "TEST-00001")
	require.NoError(t, err)
	assert.Equal(t, "TEST-00001", doc["name"])
}

func TestGetDocument_NullDataIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": nil})
	})
	_, err := c.GetDocument(context.Background(), "Test", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostAndPutDocument(t *testing.T) {
	var method string
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, 200, map[string]any{"data": map[string]any{"name": "TEST-00001"}})
	})

	doc, err := c.PostDocument(context.Background(), "Test", map[string]any{"foo": "bar"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, map[string]any{"foo": "bar"}, body)
	assert.Equal(t, "TEST-00001", doc.Name())

	_, err = c.PutDocument(context.Background(), "Test", "TEST-00001", map[string]any{"foo": "baz"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
}

func TestDeleteDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, 202, map[string]any{"message": "ok"})
	})
	msg, err := c.DeleteDocument(context.Background(), "Webhook", "Test-after_insert")
	require.NoError(t, err)
	assert.Equal(t, "ok", msg)
}

func TestFilter_MarshalJSON(t *testing.T) {
	b, err := json.Marshal([]Filter{{DocType: "Lead", Field: "status", Operator: "in", Value: []string{"Open", "Replied"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[["Lead","status","in",["Open","Replied"]]]`, string(b))
	assert.True(t, ValidOperator("not like"))
	assert.False(t, ValidOperator("~="))
}
