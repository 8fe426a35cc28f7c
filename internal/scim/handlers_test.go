package scim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/directory"
)

func newTestRouter(t *testing.T) (*gin.Engine, directory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := directory.NewMemoryStore()
	handlers := NewHandlers(store, zap.NewNop())

	router := gin.New()
	handlers.RegisterRoutes(router.Group("/scim/v2"))
	return router, store
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/scim+json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	// Create.
	payload := []byte(`{
		"userName": "a@x.com",
		"name": {"givenName": "A", "familyName": "B"},
		"emails": [{"value": "a@x.com"}],
		"active": true
	}`)
	w := doRequest(router, http.MethodPost, "/scim/v2/Users", payload)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/scim+json")

	created := decodeBody(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "a@x.com", created["userName"])
	schemas, _ := created["schemas"].([]any)
	assert.Contains(t, schemas, SchemaUser)

	// Read back.
	w = doRequest(router, http.MethodGet, "/scim/v2/Users/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	name, _ := got["name"].(map[string]any)
	assert.Equal(t, "A", name["givenName"])

	// Delete, then the read 404s with a SCIM error envelope.
	w = doRequest(router, http.MethodDelete, "/scim/v2/Users/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())

	w = doRequest(router, http.MethodGet, "/scim/v2/Users/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	errBody := decodeBody(t, w)
	assert.Equal(t, "404", errBody["status"])
	errSchemas, _ := errBody["schemas"].([]any)
	assert.Contains(t, errSchemas, SchemaError)
}

func TestCreateUserConflictOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := []byte(`{"userName": "dup@x.com"}`)
	w := doRequest(router, http.MethodPost, "/scim/v2/Users", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, http.MethodPost, "/scim/v2/Users", payload)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "409", decodeBody(t, w)["status"])
}

func TestListUsersEnvelope(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := store.CreateUser(ctx, &directory.UserModel{
			UserName: fmt.Sprintf("u%d@x.com", i),
		})
		require.NoError(t, err)
	}

	w := doRequest(router, http.MethodGet, "/scim/v2/Users?startIndex=2&count=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	schemas, _ := body["schemas"].([]any)
	assert.Contains(t, schemas, SchemaListResponse)
	assert.Equal(t, float64(3), body["totalResults"])
	assert.Equal(t, float64(2), body["startIndex"])
	assert.Equal(t, float64(1), body["itemsPerPage"])

	resources, _ := body["Resources"].([]any)
	require.Len(t, resources, 1)
	first, _ := resources[0].(map[string]any)
	assert.Equal(t, "u2@x.com", first["userName"])
}

func TestFilterUsersOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, &directory.UserModel{UserName: "f@x.com", GivenName: "F"})
	require.NoError(t, err)

	filter := url.QueryEscape(`userName eq "f@x.com"`)
	w := doRequest(router, http.MethodGet, "/scim/v2/Users?filter="+filter, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["totalResults"])

	// An unsupported attribute is a 400, not an empty list.
	filter = url.QueryEscape(`password eq x`)
	w = doRequest(router, http.MethodGet, "/scim/v2/Users?filter="+filter, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "400", decodeBody(t, w)["status"])
}

func TestFilterGroupsNoMatchIs404(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	_, err := store.CreateGroup(ctx, &directory.GroupModel{DisplayName: "Real"})
	require.NoError(t, err)

	filter := url.QueryEscape(`displayName eq Nonexistent`)
	w := doRequest(router, http.MethodGet, "/scim/v2/Groups?filter="+filter, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404", decodeBody(t, w)["status"])
}

func TestPatchUserOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &directory.UserModel{
		Active:   true,
		UserName: "p@x.com",
	})
	require.NoError(t, err)

	patch := []byte(`{"Operations": [{"op": "replace", "value": {"active": false}}]}`)
	w := doRequest(router, http.MethodPatch, "/scim/v2/Users/"+user.ID, patch)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["active"])

	// An unsupported operation is 403 Operation Not Supported.
	patch = []byte(`{"Operations": [{"op": "move", "value": {}}]}`)
	w = doRequest(router, http.MethodPatch, "/scim/v2/Users/"+user.ID, patch)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "403", body["status"])
	assert.Equal(t, "Operation Not Supported", body["detail"])

	// A body without Operations is 400.
	w = doRequest(router, http.MethodPatch, "/scim/v2/Users/"+user.ID, []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatchGroupMembersOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &directory.UserModel{
		UserName:   "m@x.com",
		GivenName:  "M",
		FamilyName: "N",
	})
	require.NoError(t, err)
	group, err := store.CreateGroup(ctx, &directory.GroupModel{DisplayName: "Patchable"})
	require.NoError(t, err)

	add := []byte(fmt.Sprintf(
		`{"Operations": [{"op": "add", "path": "members", "value": [{"value": %q}]}]}`, user.ID))
	w := doRequest(router, http.MethodPatch, "/scim/v2/Groups/"+group.ID, add)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	members, _ := body["members"].([]any)
	require.Len(t, members, 1)
	member, _ := members[0].(map[string]any)
	assert.Equal(t, user.ID, member["value"])
	assert.Equal(t, "M N", member["display"])
	assert.Equal(t, "../Users/"+user.ID, member["$ref"])

	remove := []byte(fmt.Sprintf(
		`{"Operations": [{"op": "remove", "path": "members[value eq \"%s\"]"}]}`, user.ID))
	w = doRequest(router, http.MethodPatch, "/scim/v2/Groups/"+group.ID, remove)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	members, _ = body["members"].([]any)
	assert.Empty(t, members)
}

func TestPutUserOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &directory.UserModel{
		Active:   true,
		UserName: "put@x.com",
	})
	require.NoError(t, err)
	group, err := store.CreateGroup(ctx, &directory.GroupModel{
		DisplayName: "Keepers",
		Members:     []directory.RefModel{{Value: user.ID}},
	})
	require.NoError(t, err)

	// A PUT without a groups key must not drop the membership.
	payload := []byte(`{"userName": "put@x.com", "active": false, "name": {"givenName": "P"}}`)
	w := doRequest(router, http.MethodPut, "/scim/v2/Users/"+user.ID, payload)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["active"])
	groups, _ := body["groups"].([]any)
	require.Len(t, groups, 1)
	ref, _ := groups[0].(map[string]any)
	assert.Equal(t, group.ID, ref["value"])
}

func TestMalformedJSONIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/scim/v2/Users", []byte(`{broken`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "400", body["status"])
	assert.Equal(t, "Invalid JSON format", body["detail"])
}
