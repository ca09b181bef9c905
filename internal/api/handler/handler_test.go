package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/api/middleware"
	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/oracle"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/internal/service"
	"github.com/d60-Lab/did-node/internal/testutil"
	"github.com/d60-Lab/did-node/pkg/didkey"
)

const (
	adminSecret   = "test-secret"
	testBodyLimit = 4096
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

type fakeSubmitter struct {
	got model.Submission
	out *model.Submission
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, in model.Submission) (*model.Submission, error) {
	f.got = in
	if f.err != nil {
		return f.out, f.err
	}
	out := in
	return &out, nil
}

type fakeIdentity struct{ err error }

func (f *fakeIdentity) CheckIdentity(_ context.Context, domain, message, sig string) (*service.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.Identity{Domain: domain, SignatureVerified: sig != ""}, nil
}

func (f *fakeIdentity) CheckPath(_ context.Context, domain, path string) (*service.PathCheck, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.PathCheck{Domain: domain, Path: path, Marker: "m", Hash: "h"}, nil
}

type fakeTip struct {
	info *oracle.BlockInfo
	err  error
}

func (f *fakeTip) Latest(context.Context) (*oracle.BlockInfo, error) { return f.info, f.err }

type fakeBlocks struct{ remembered []*model.Block }

func (f *fakeBlocks) Remember(_ context.Context, b *model.Block) error {
	f.remembered = append(f.remembered, b)
	return nil
}

type env struct {
	router *gin.Engine
	sub    *fakeSubmitter
	ident  *fakeIdentity
	tip    *fakeTip
	blocks *fakeBlocks
	posts  repository.PostRepository
}

func newEnv(t *testing.T) *env {
	e := &env{
		sub:    &fakeSubmitter{},
		ident:  &fakeIdentity{},
		tip:    &fakeTip{info: &oracle.BlockInfo{Hash: strings.Repeat("ab", 32), Time: 1700000000, Height: 5}},
		blocks: &fakeBlocks{},
		posts:  repository.NewPostRepository(testutil.NewDB(t)),
	}
	h := NewHandler(Deps{
		Submissions: e.sub,
		Identity:    e.ident,
		Tip:         e.tip,
		Blocks:      e.blocks,
		Posts:       e.posts,
		Topic:       "news",
		Log:         zap.NewNop(),
	})
	r := gin.New()
	r.Use(middleware.BodyLimit(testBodyLimit))
	r.GET("/", h.Index)
	r.GET("/healthz", h.Healthz)
	r.POST("/users/:domain/post", h.SubmitPost)
	r.POST("/users/:domain/validate", h.ValidateIdentity)
	r.POST("/users/:domain/path/validate", h.ValidatePath)
	r.GET("/block/latest", h.LatestBlock)
	r.GET("/posts/:blockHash", h.ListBlockPosts)
	r.POST("/keys", h.GenerateKeys)
	r.DELETE("/admin/posts/:signature", middleware.AdminAuth(adminSecret), h.RevokePost)
	e.router = r
	return e
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (e *env) doRaw(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func rejection(t *testing.T, env envelope) (string, string) {
	t.Helper()
	var r struct{ Reason, Kind string }
	require.NoError(t, json.Unmarshal(env.Data, &r))
	return r.Reason, r.Kind
}

func TestSubmitPostDefaultsOwnerDomain(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(t, http.MethodPost, "/users/alice.com/post", model.Submission{PostDomain: "alice.com", Path: "p"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice.com", e.sub.got.OwnerDomain)
}

func TestSubmitPostOwnerMismatch(t *testing.T) {
	e := newEnv(t)
	w, env := e.do(t, http.MethodPost, "/users/alice.com/post", model.Submission{OwnerDomain: "bob.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	reason, kind := rejection(t, env)
	assert.Equal(t, "InvalidOwnerDomain", reason)
	assert.Equal(t, "Input", kind)

	w, _ = e.do(t, http.MethodPost, "/users/alice.com/post", model.Submission{OwnerDomain: "ALICE.com"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmitPostInvalidURLDomain(t *testing.T) {
	e := newEnv(t)
	w, env := e.do(t, http.MethodPost, "/users/localhost/post", model.Submission{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	reason, _ := rejection(t, env)
	assert.Equal(t, "InvalidOwnerDomain", reason)
}

func TestMalformedBodiesAreTaggedRejections(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/users/alice.com/post", "/users/alice.com/validate", "/users/alice.com/path/validate"} {
		w, env := e.doRaw(t, http.MethodPost, path, "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		reason, kind := rejection(t, env)
		assert.Equal(t, "MalformedPayload", reason, path)
		assert.Equal(t, "Input", kind, path)
	}
	assert.Empty(t, e.sub.got.PostDomain, "nothing reached the submitter")
}

func TestOversizedBodyRejected(t *testing.T) {
	e := newEnv(t)
	big := `{"postDomain":"alice.com","path":"` + strings.Repeat("a", 2*testBodyLimit) + `"}`
	w, env := e.doRaw(t, http.MethodPost, "/users/alice.com/post", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	reason, kind := rejection(t, env)
	assert.Equal(t, "MalformedPayload", reason)
	assert.Equal(t, "Input", kind)
	assert.Empty(t, e.sub.got.PostDomain)
}

func TestSubmitPostRejections(t *testing.T) {
	cases := []struct {
		reason service.Reason
		kind   service.Kind
		status int
	}{
		{service.ReasonDuplicate, service.KindConflict, http.StatusConflict},
		{service.ReasonInvalidSignature, service.KindIntegrity, http.StatusUnprocessableEntity},
		{service.ReasonKeyFetchFailed, service.KindOracle, http.StatusFailedDependency},
		{service.ReasonStorageFailed, service.KindStorage, http.StatusInternalServerError},
		{service.ReasonPublishFailed, service.KindNetwork, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			e := newEnv(t)
			e.sub.err = &service.Rejection{Reason: tc.reason, Kind: tc.kind, Message: "nope"}
			w, env := e.do(t, http.MethodPost, "/users/alice.com/post", model.Submission{})
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.status, env.Code)
			reason, kind := rejection(t, env)
			assert.Equal(t, string(tc.reason), reason)
			assert.Equal(t, string(tc.kind), kind)
		})
	}
}

func TestSubmitPostUnexpectedError(t *testing.T) {
	e := newEnv(t)
	e.sub.err = errors.New("boom")
	w, _ := e.do(t, http.MethodPost, "/users/alice.com/post", model.Submission{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidateIdentity(t *testing.T) {
	e := newEnv(t)
	w, env := e.do(t, http.MethodPost, "/users/alice.com/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var id service.Identity
	require.NoError(t, json.Unmarshal(env.Data, &id))
	assert.Equal(t, "alice.com", id.Domain)
	assert.False(t, id.SignatureVerified)

	w, env = e.do(t, http.MethodPost, "/users/alice.com/validate", identityRequest{Message: "m", SignatureHex: "zz"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	reason, _ := rejection(t, env)
	assert.Equal(t, "MalformedSignature", reason)

	w, env = e.do(t, http.MethodPost, "/users/alice.com/validate", identityRequest{Message: "m", SignatureHex: "abcd"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &id))
	assert.True(t, id.SignatureVerified)

	e.ident.err = &service.Rejection{Reason: service.ReasonInvalidPublicKey, Kind: service.KindOracle}
	w, _ = e.do(t, http.MethodPost, "/users/alice.com/validate", nil)
	assert.Equal(t, http.StatusFailedDependency, w.Code)
}

func TestValidatePath(t *testing.T) {
	e := newEnv(t)
	w, env := e.do(t, http.MethodPost, "/users/alice.com/path/validate", pathRequest{Path: "posts/1"})
	require.Equal(t, http.StatusOK, w.Code)
	var res service.PathCheck
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "posts/1", res.Path)
}

func TestLatestBlockWarmsCache(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(t, http.MethodGet, "/block/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, e.blocks.remembered, 1)
	assert.Equal(t, e.tip.info.Hash, e.blocks.remembered[0].Hash)

	e.tip.err = oracle.ErrBlockLookup
	w, _ = e.do(t, http.MethodGet, "/block/latest", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func seedPost(t *testing.T, posts repository.PostRepository, sig, block string) {
	t.Helper()
	require.NoError(t, posts.Insert(context.Background(), &model.Post{
		Signature: sig, Domain: "alice.com", PostDomain: "alice.com", Path: "p/" + sig,
		Hash: strings.Repeat("0", 64), Block: block,
	}))
}

func TestListBlockPosts(t *testing.T) {
	e := newEnv(t)
	block := strings.Repeat("ab", 32)
	seedPost(t, e.posts, "aa01", block)
	seedPost(t, e.posts, "aa02", block)
	seedPost(t, e.posts, "aa03", strings.Repeat("cd", 32))

	w, env := e.do(t, http.MethodGet, "/posts/"+block, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []model.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "alice.com/p/"+entries[0].Signature, entries[0].Path)

	w, env = e.do(t, http.MethodGet, "/posts/"+block+"?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 1)
}

func TestGenerateKeys(t *testing.T) {
	e := newEnv(t)
	w, env := e.do(t, http.MethodPost, "/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var kp keyPair
	require.NoError(t, json.Unmarshal(env.Data, &kp))
	priv, err := didkey.ParsePrivateKeyPEM([]byte(kp.PrivateKey))
	require.NoError(t, err)
	pub, err := didkey.ParsePublicKeyPEM([]byte(kp.PublicKey))
	require.NoError(t, err)
	assert.True(t, priv.PubKey().IsEqual(pub))
}

func adminToken(t *testing.T) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestRevokePost(t *testing.T) {
	e := newEnv(t)
	seedPost(t, e.posts, "beef", strings.Repeat("ab", 32))

	w, _ := e.do(t, http.MethodDelete, "/admin/posts/beef", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := e.do(t, http.MethodDelete, "/admin/posts/BEEF", nil, "Authorization", adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	var entry model.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.NotNil(t, entry.DeadAt)

	w, _ = e.do(t, http.MethodDelete, "/admin/posts/0000", nil, "Authorization", adminToken(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIndexAndHealth(t *testing.T) {
	e := newEnv(t)
	w, env := e.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var b banner
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, "news", b.Topic)

	w, _ = e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
