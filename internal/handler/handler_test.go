package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fruittrace/internal/blob"
	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/repository"
	"fruittrace/internal/service"
	"fruittrace/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testSecret = []byte("handler-test-secret")

type apiFixture struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	farm   *model.Farm
	admin  *model.User
	staff  *model.User
	store  *blob.Memory
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Reason     string          `json:"reason"`
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	tx := repository.NewTransactionManager(db)
	approvalRepo := repository.NewApprovalRepository(db)
	productRepo := repository.NewProductRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	store := blob.NewMemory()

	review := service.NewReviewService(tx, approvalRepo, productRepo, auditRepo, nil, nil)
	intake := service.NewIntakeService(tx, approvalRepo, catalogRepo, auditRepo, review, store, nil, nil)
	catalog := service.NewCatalogService(tx, catalogRepo, productRepo, auditRepo)
	users := service.NewUserService(tx, userRepo, auditRepo, testSecret, time.Hour, service.WithHashCost(bcrypt.MinCost))
	auth := middleware.NewAuth(testSecret)

	router := gin.New()
	Mount(router,
		NewUserHandler(users, auth, time.Hour, 24*time.Hour, false),
		NewProductHandler(intake, catalog, service.NewPublicService(productRepo, nil), auth, 1<<20),
		NewApprovalHandler(service.NewApprovalService(approvalRepo, productRepo), review, auth),
		NewCatalogHandler(catalog, auth),
		NewAuditHandler(service.NewAuditService(auditRepo), auth),
	)

	return &apiFixture{
		t:      t,
		db:     db,
		router: router,
		farm:   testutil.CreateFarm(t, db, "Green Valley"),
		admin:  testutil.CreateUser(t, db, "admin", model.RoleAdmin),
		staff:  testutil.CreateUser(t, db, "staff", model.RoleStaff),
		store:  store,
	}
}

func (f *apiFixture) token(u *model.User) string {
	tok, err := middleware.IssueToken(model.Actor{ID: u.ID, Role: u.Role}, testSecret, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *apiFixture) do(method, path string, as *model.User, body interface{}) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return f.serve(req, as)
}

func (f *apiFixture) serve(req *http.Request, as *model.User) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(as))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestAPI_StaffSubmitAdminApprove(t *testing.T) {
	f := newAPI(t)

	w, env := f.do(http.MethodPost, "/api/products", f.staff, map[string]interface{}{
		"name":   "Dragon fruit",
		"price":  12.5,
		"farmId": f.farm.ID.String(),
		"images": []string{"https://cdn.example.com/a.jpg"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	submitted := decodeData[service.SubmitResult](t, env)
	assert.Equal(t, service.SubmitPending, submitted.Status)

	path := "/api/approvals/" + submitted.RequestID.String()

	w, env = f.do(http.MethodPost, path, f.staff, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = f.do(http.MethodPost, path, f.admin, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reviewed := decodeData[service.ReviewResult](t, env)
	require.NotNil(t, reviewed.ProductID)

	w, env = f.do(http.MethodPost, path, f.admin, map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ReasonConflict, env.Reason)

	w, env = f.do(http.MethodGet, "/api/products/public/"+reviewed.ProductID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeData[service.PublicProductView](t, env)
	assert.Equal(t, "Dragon fruit", view.Name)
	assert.Equal(t, "Green Valley", view.FarmName)

	w, env = f.do(http.MethodGet, "/api/approvals/stats", f.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.StatusCounts{Approved: 1}, decodeData[service.StatusCounts](t, env))
}

func TestAPI_PublicLookupMisses(t *testing.T) {
	f := newAPI(t)

	w1, env1 := f.do(http.MethodGet, "/api/products/public/not-a-uuid", nil, nil)
	w2, env2 := f.do(http.MethodGet, "/api/products/public/6f1c2a8e-5d7b-4c1e-9a3f-2b8d4e6f0a11", nil, nil)
	assert.Equal(t, http.StatusNotFound, w1.Code)
	assert.Equal(t, http.StatusNotFound, w2.Code)
	assert.Equal(t, env2.Error, env1.Error)
	assert.Equal(t, ReasonNotFound, env2.Reason)
}

func TestAPI_AuthRequired(t *testing.T) {
	f := newAPI(t)

	w, _ := f.do(http.MethodGet, "/api/products", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(http.MethodGet, "/api/audit-logs", f.staff, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(http.MethodGet, "/api/audit-logs", f.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_Login(t *testing.T) {
	f := newAPI(t)

	w, env := f.do(http.MethodPost, "/api/login", nil, map[string]string{"username": "staff", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	tok := decodeData[service.TokenResponse](t, env)
	assert.NotEmpty(t, tok.Token)
	assert.NotEmpty(t, w.Result().Cookies())

	w, env = f.do(http.MethodPost, "/api/login", nil, map[string]string{"username": "staff", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ReasonUnauthorized, env.Reason)
}

func TestAPI_RefreshAndLogout(t *testing.T) {
	f := newAPI(t)

	w, env := f.do(http.MethodPost, "/api/login", nil, map[string]string{"username": "admin", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decodeData[service.TokenResponse](t, env)
	require.NotEmpty(t, login.RefreshToken)

	w, env = f.do(http.MethodPost, "/api/refresh-token", nil, map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := decodeData[service.TokenResponse](t, env)
	assert.NotEqual(t, login.RefreshToken, next.RefreshToken)
	cookies := map[string]*http.Cookie{}
	for _, ck := range w.Result().Cookies() {
		cookies[ck.Name] = ck
	}
	require.Contains(t, cookies, middleware.RefreshTokenCookie)
	assert.Equal(t, next.RefreshToken, cookies[middleware.RefreshTokenCookie].Value)

	w, env = f.do(http.MethodPost, "/api/refresh-token", nil, map[string]string{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ReasonUnauthorized, env.Reason)

	w, env = f.do(http.MethodPost, "/api/refresh-token", nil, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ReasonValidation, env.Reason)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: next.RefreshToken})
	w, _ = f.serve(req, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := 0
	for _, ck := range w.Result().Cookies() {
		assert.Less(t, ck.MaxAge, 0, ck.Name)
		cleared++
	}
	assert.Equal(t, 2, cleared)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, &model.RefreshToken{}))

	w, _ = f.do(http.MethodPost, "/api/refresh-token", nil, map[string]string{"refresh_token": next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_ValidationAndMalformed(t *testing.T) {
	f := newAPI(t)

	w, env := f.do(http.MethodPost, "/api/products", f.staff, map[string]interface{}{"name": "No price", "farmId": f.farm.ID.String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ReasonValidation, env.Reason)

	w, _ = f.do(http.MethodPost, "/api/products", f.staff, map[string]interface{}{"name": map[string]string{"en": "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := &model.ApprovalRequest{
		RequestType: model.RequestCreate,
		RequestedBy: f.staff.ID,
		Status:      model.ApprovalPending,
		Payload:     datatypes.JSON(`{"name":["a","b"]}`),
	}
	require.NoError(t, f.db.Create(req).Error)

	w, env = f.do(http.MethodPost, "/api/approvals/"+req.ID.String(), f.admin, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ReasonMalformedPayload, env.Reason)
}

func TestAPI_AdminMultipartCreate(t *testing.T) {
	f := newAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Mangosteen"))
	require.NoError(t, mw.WriteField("price", "45000"))
	require.NoError(t, mw.WriteField("farmId", f.farm.ID.String()))
	require.NoError(t, mw.WriteField("description", ""))
	part, err := mw.CreateFormFile("media", "mangosteen.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env := f.serve(req, f.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := decodeData[service.SubmitResult](t, env)
	assert.Equal(t, service.SubmitApplied, res.Status)
	require.NotNil(t, res.ProductID)
	assert.Len(t, f.store.Keys(), 1)

	w, env = f.do(http.MethodGet, "/api/products/"+res.ProductID.String(), f.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	product := decodeData[model.Product](t, env)
	require.NotNil(t, product.MediaURL)
	assert.Nil(t, product.Description)
	assert.Len(t, product.Images, 1)
}

func TestAPI_CatalogAdmin(t *testing.T) {
	f := newAPI(t)

	w, _ := f.do(http.MethodPost, "/api/farms", f.staff, map[string]string{"name": "Hill"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(http.MethodPost, "/api/farms", f.admin, map[string]string{"name": "Hill"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, env := f.do(http.MethodGet, "/api/farms", f.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]model.Farm](t, env), 2)

	w, _ = f.do(http.MethodPost, "/api/certifications", f.admin, map[string]string{"issuer": "nobody"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlattenJSON(t *testing.T) {
	raw := map[string]json.RawMessage{
		"name":   json.RawMessage(`"Kiwi"`),
		"price":  json.RawMessage(`3.75`),
		"images": json.RawMessage(`["a.jpg","b.jpg"]`),
		"notes":  json.RawMessage(`null`),
	}
	got, err := flattenJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Kiwi", "price": "3.75", "images": "a.jpg,b.jpg"}, got)

	_, err = flattenJSON(map[string]json.RawMessage{"farmId": json.RawMessage(`{"id":1}`)})
	assert.Error(t, err)
}
