package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/auth"
	"github.com/plotark/plotark/internal/catalog"
	"github.com/plotark/plotark/internal/config"
	"github.com/plotark/plotark/internal/db"
	"github.com/plotark/plotark/internal/generator"
	"github.com/plotark/plotark/internal/mail"
	"github.com/plotark/plotark/internal/models"
	"github.com/plotark/plotark/internal/outline"
	"github.com/plotark/plotark/internal/ratelimit"
	"github.com/plotark/plotark/internal/verification"
	"gorm.io/gorm"
)

const (
	testJWTSecret   = "api-test-secret"
	testAdminSecret = "api-admin-secret"
)

type stubGenerator struct {
	calls   int
	outcome generator.Outcome
	err     error
}

func (s *stubGenerator) GenerateOutline(ctx context.Context, req generator.Request) (generator.Outcome, error) {
	s.calls++
	if s.err != nil {
		return generator.Outcome{}, s.err
	}
	return s.outcome, nil
}

type stubLister struct {
	models []generator.ModelInfo
}

func (s *stubLister) ListModels(ctx context.Context) ([]generator.ModelInfo, error) {
	return s.models, nil
}

type captureMailer struct {
	sent []mail.Message
	err  error
}

func (m *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type apiHarness struct {
	engine *gin.Engine
	conn   *gorm.DB
	gen    *stubGenerator
	mailer *captureMailer
	limits config.RateLimitConfig
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := db.Open(filepath.Join(t.TempDir(), "api.db"))
	if errOpen != nil {
		t.Fatalf("open database: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	h := &apiHarness{
		conn:   conn,
		gen:    &stubGenerator{outcome: generator.Outcome{Text: "T"}},
		mailer: &captureMailer{},
		limits: config.RateLimitConfig{PerDay: 1000, PerHour: 1000, GeneratePerDay: 1000},
	}

	modelCatalog := catalog.New(&stubLister{models: []generator.ModelInfo{
		{Name: "models/gemini-1.5-flash-latest", SupportedGenerationMethods: []string{"generateContent"}},
	}})

	h.engine = gin.New()
	RegisterRoutes(h.engine, Deps{
		DB:          conn,
		JWT:         config.JWTConfig{Secret: testJWTSecret, Expiry: time.Hour},
		AdminSecret: testAdminSecret,
		Mail:        config.MailConfig{VerifyURL: "https://plotark.test/verify"},
		Mailer:      h.mailer,
		Verifier:    verification.NewService(conn, testJWTSecret, nil),
		Outlines:    outline.NewService(conn, h.gen),
		Catalog:     modelCatalog,
		Limiter:     ratelimit.NewManager(func() config.RateLimitConfig { return h.limits }, nil, nil),
		RateLimits:  func() config.RateLimitConfig { return h.limits },
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)

	parsed := map[string]any{}
	if recorder.Body.Len() > 0 {
		if errDecode := json.Unmarshal(recorder.Body.Bytes(), &parsed); errDecode != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), errDecode)
		}
	}
	return recorder, parsed
}

// register creates an account and returns its verification token, either
// from the degraded (mail-failed) response or from the captured email link.
func (h *apiHarness) register(t *testing.T, email, password string) string {
	t.Helper()
	recorder, parsed := h.do(t, http.MethodPost, "/v0/register", "", gin.H{"email": email, "password": password})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, recorder.Code, recorder.Body.String())
	}
	if token, ok := parsed["verification_token"].(string); ok && token != "" {
		return token
	}

	if len(h.mailer.sent) == 0 {
		t.Fatalf("register %s: no verification token in response and no mail sent", email)
	}
	last := h.mailer.sent[len(h.mailer.sent)-1]
	if last.To != email {
		t.Fatalf("expected verification mail to %s, got %s", email, last.To)
	}
	_, after, found := strings.Cut(last.HTML, "?token=")
	if !found {
		t.Fatalf("verification mail carries no token link: %s", last.HTML)
	}
	token, _, _ := strings.Cut(after, `"`)
	return token
}

func (h *apiHarness) login(t *testing.T, email, password string) string {
	t.Helper()
	recorder, parsed := h.do(t, http.MethodPost, "/v0/login", "", gin.H{"email": email, "password": password})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, recorder.Code, recorder.Body.String())
	}
	token, _ := parsed["token"].(string)
	if token == "" {
		t.Fatalf("login %s: empty session token", email)
	}
	return token
}

func TestRegisterVerifyGenerateFlow(t *testing.T) {
	h := newAPIHarness(t)
	h.mailer.err = fmt.Errorf("smtp down")

	verifyToken := h.register(t, "a@x.com", "p1")
	if verifyToken == "" {
		t.Fatal("expected verification token in degraded register response")
	}
	session := h.login(t, "a@x.com", "p1")

	// Unverified accounts cannot spend credits.
	recorder, parsed := h.do(t, http.MethodPost, "/v0/generate", session, gin.H{
		"character1": "Ann", "character2": "Ben", "plot_prompt": "heist",
	})
	if recorder.Code != http.StatusForbidden || parsed["error"] != "not-verified" {
		t.Fatalf("expected 403 not-verified, got %d %v", recorder.Code, parsed)
	}
	if h.gen.calls != 0 {
		t.Fatalf("generator called %d times before verification", h.gen.calls)
	}

	recorder, parsed = h.do(t, http.MethodGet, "/v0/verify?token="+verifyToken, "", nil)
	if recorder.Code != http.StatusOK || parsed["email"] != "a@x.com" {
		t.Fatalf("verify failed: %d %v", recorder.Code, parsed)
	}

	recorder, parsed = h.do(t, http.MethodPost, "/v0/generate", session, gin.H{
		"character1": "Ann", "character2": "Ben", "plot_prompt": "heist",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("generate: status %d body %s", recorder.Code, recorder.Body.String())
	}
	if parsed["outline"] != "T" {
		t.Fatalf("expected outline T, got %v", parsed["outline"])
	}
	if remaining, _ := parsed["remaining_credits"].(float64); remaining != float64(models.DefaultSignupCredits-1) {
		t.Fatalf("expected remaining_credits=%d, got %v", models.DefaultSignupCredits-1, parsed["remaining_credits"])
	}

	var count int64
	if errCount := h.conn.Model(&models.Outline{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count outlines: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 persisted outline, got %d", count)
	}
}

func TestGenerateExhaustsCredits(t *testing.T) {
	h := newAPIHarness(t)
	verifyToken := h.register(t, "b@x.com", "p1")
	h.do(t, http.MethodGet, "/v0/verify?token="+verifyToken, "", nil)
	session := h.login(t, "b@x.com", "p1")

	body := gin.H{"character1": "Ann", "character2": "Ben", "plot_prompt": "heist"}
	for i := 0; i < models.DefaultSignupCredits; i++ {
		recorder, _ := h.do(t, http.MethodPost, "/v0/generate", session, body)
		if recorder.Code != http.StatusOK {
			t.Fatalf("generate %d: status %d body %s", i, recorder.Code, recorder.Body.String())
		}
	}

	recorder, parsed := h.do(t, http.MethodPost, "/v0/generate", session, body)
	if recorder.Code != http.StatusPaymentRequired || parsed["error"] != "insufficient-credits" {
		t.Fatalf("expected 402 insufficient-credits, got %d %v", recorder.Code, parsed)
	}
	if h.gen.calls != models.DefaultSignupCredits {
		t.Fatalf("generator called %d times, expected %d", h.gen.calls, models.DefaultSignupCredits)
	}
}

func TestGenerateSafetyBlockChargesNothing(t *testing.T) {
	h := newAPIHarness(t)
	verifyToken := h.register(t, "c@x.com", "p1")
	h.do(t, http.MethodGet, "/v0/verify?token="+verifyToken, "", nil)
	session := h.login(t, "c@x.com", "p1")

	h.gen.outcome = generator.Outcome{Blocked: true, BlockReason: "HATE"}
	recorder, parsed := h.do(t, http.MethodPost, "/v0/generate", session, gin.H{
		"character1": "Ann", "character2": "Ben", "plot_prompt": "heist",
	})
	if recorder.Code != http.StatusBadRequest || parsed["error"] != "content-blocked" {
		t.Fatalf("expected 400 content-blocked, got %d %v", recorder.Code, parsed)
	}
	if parsed["reason"] != "HATE" {
		t.Fatalf("expected reason HATE, got %v", parsed["reason"])
	}

	var user models.User
	if errFind := h.conn.Where("email = ?", "c@x.com").First(&user).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	if user.Credits != models.DefaultSignupCredits {
		t.Fatalf("blocked generation changed balance to %d", user.Credits)
	}
}

func TestGuestGenerateWithoutCredentials(t *testing.T) {
	h := newAPIHarness(t)

	recorder, parsed := h.do(t, http.MethodPost, "/v0/generate", "", gin.H{
		"character1": "Ann", "character2": "Ben", "plot_prompt": "heist",
	})
	if recorder.Code != http.StatusOK || parsed["outline"] != "T" {
		t.Fatalf("guest generate failed: %d %v", recorder.Code, parsed)
	}
	if _, hasCredits := parsed["remaining_credits"]; hasCredits {
		t.Fatal("guest response must not expose a credit balance")
	}

	var count int64
	if errCount := h.conn.Model(&models.Outline{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count outlines: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("guest generation persisted %d outlines", count)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newAPIHarness(t)
	h.register(t, "d@x.com", "p1")

	recorder, parsed := h.do(t, http.MethodPost, "/v0/register", "", gin.H{"email": "d@x.com", "password": "p2"})
	if recorder.Code != http.StatusConflict || parsed["error"] != "email-exists" {
		t.Fatalf("expected 409 email-exists, got %d %v", recorder.Code, parsed)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newAPIHarness(t)
	h.register(t, "e@x.com", "p1")

	recorder, parsed := h.do(t, http.MethodPost, "/v0/login", "", gin.H{"email": "e@x.com", "password": "wrong"})
	if recorder.Code != http.StatusUnauthorized || parsed["error"] != "invalid-credentials" {
		t.Fatalf("expected 401 invalid-credentials, got %d %v", recorder.Code, parsed)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	h := newAPIHarness(t)

	recorder, parsed := h.do(t, http.MethodGet, "/v0/verify?token=not-a-token", "", nil)
	if recorder.Code != http.StatusBadRequest || parsed["error"] != "token-invalid" {
		t.Fatalf("expected 400 token-invalid, got %d %v", recorder.Code, parsed)
	}
}

func TestGenerateRateLimit(t *testing.T) {
	h := newAPIHarness(t)
	h.limits.GeneratePerDay = 2

	body := gin.H{"character1": "Ann", "character2": "Ben", "plot_prompt": "heist"}
	for i := 0; i < 2; i++ {
		recorder, _ := h.do(t, http.MethodPost, "/v0/generate", "", body)
		if recorder.Code != http.StatusOK {
			t.Fatalf("generate %d: status %d body %s", i, recorder.Code, recorder.Body.String())
		}
	}

	recorder, parsed := h.do(t, http.MethodPost, "/v0/generate", "", body)
	if recorder.Code != http.StatusTooManyRequests || parsed["error"] != "rate-limited" {
		t.Fatalf("expected 429 rate-limited, got %d %v", recorder.Code, parsed)
	}
	if h.gen.calls != 2 {
		t.Fatalf("generator called %d times past the route limit", h.gen.calls)
	}
}

func TestGlobalRateLimitCoversAllRoutes(t *testing.T) {
	h := newAPIHarness(t)
	h.limits.PerHour = 1

	recorder, _ := h.do(t, http.MethodPost, "/v0/login", "", gin.H{"email": "f@x.com", "password": "p"})
	if recorder.Code == http.StatusTooManyRequests {
		t.Fatalf("first request must pass, got 429")
	}
	recorder, parsed := h.do(t, http.MethodPost, "/v0/login", "", gin.H{"email": "f@x.com", "password": "p"})
	if recorder.Code != http.StatusTooManyRequests || parsed["error"] != "rate-limited" {
		t.Fatalf("expected 429 rate-limited, got %d %v", recorder.Code, parsed)
	}
}

func TestBadSessionTokensRejected(t *testing.T) {
	h := newAPIHarness(t)
	verifyToken := h.register(t, "g@x.com", "p1")
	h.do(t, http.MethodGet, "/v0/verify?token="+verifyToken, "", nil)

	recorder, parsed := h.do(t, http.MethodGet, "/v0/outlines", "not.a.jwt", nil)
	if recorder.Code != http.StatusUnauthorized || parsed["error"] != "token-invalid" {
		t.Fatalf("expected 401 token-invalid, got %d %v", recorder.Code, parsed)
	}

	var user models.User
	if errFind := h.conn.Where("email = ?", "g@x.com").First(&user).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	expired, errIssue := auth.IssueSessionToken(testJWTSecret, user.ID, -time.Hour)
	if errIssue != nil {
		t.Fatalf("issue expired token: %v", errIssue)
	}
	recorder, parsed = h.do(t, http.MethodGet, "/v0/outlines", expired, nil)
	if recorder.Code != http.StatusUnauthorized || parsed["error"] != "token-expired" {
		t.Fatalf("expected 401 token-expired, got %d %v", recorder.Code, parsed)
	}
}

func TestOutlineHistoryRoundTrip(t *testing.T) {
	h := newAPIHarness(t)
	verifyToken := h.register(t, "h@x.com", "p1")
	h.do(t, http.MethodGet, "/v0/verify?token="+verifyToken, "", nil)
	session := h.login(t, "h@x.com", "p1")

	recorder, parsed := h.do(t, http.MethodPost, "/v0/outlines", session, gin.H{
		"characters": "Ann, Ben", "core_scenes": "rooftop chase", "outline": "Saved draft",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("save: status %d body %s", recorder.Code, recorder.Body.String())
	}
	savedID, _ := parsed["id"].(float64)
	if savedID == 0 {
		t.Fatalf("save returned id %v", parsed["id"])
	}

	recorder, parsed = h.do(t, http.MethodGet, "/v0/outlines", session, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list: status %d", recorder.Code)
	}
	entries, _ := parsed["outlines"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 outline, got %d", len(entries))
	}

	recorder, _ = h.do(t, http.MethodDelete, fmt.Sprintf("/v0/outlines/%d", int(savedID)), session, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete: status %d", recorder.Code)
	}

	// Another account cannot see or delete what is gone or foreign.
	otherToken := h.register(t, "i@x.com", "p1")
	h.do(t, http.MethodGet, "/v0/verify?token="+otherToken, "", nil)
	otherSession := h.login(t, "i@x.com", "p1")
	recorder, _ = h.do(t, http.MethodDelete, fmt.Sprintf("/v0/outlines/%d", int(savedID)), otherSession, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("cross-user delete: status %d", recorder.Code)
	}
}

func TestAdminGate(t *testing.T) {
	h := newAPIHarness(t)
	h.register(t, "j@x.com", "p1")

	req := httptest.NewRequest(http.MethodPost, "/v0/admin/credits", bytes.NewReader([]byte(`{"email":"j@x.com","amount":10}`)))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("missing secret: status %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v0/admin/credits", bytes.NewReader([]byte(`{"email":"j@x.com","amount":10}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "wrong")
	recorder = httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("wrong secret: status %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v0/admin/credits", bytes.NewReader([]byte(`{"email":"j@x.com","amount":10}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", testAdminSecret)
	recorder = httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("correct secret: status %d body %s", recorder.Code, recorder.Body.String())
	}
	var parsed map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &parsed); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if credits, _ := parsed["credits"].(float64); credits != float64(models.DefaultSignupCredits+10) {
		t.Fatalf("expected credits=%d, got %v", models.DefaultSignupCredits+10, parsed["credits"])
	}
}

func TestListModels(t *testing.T) {
	h := newAPIHarness(t)

	recorder, parsed := h.do(t, http.MethodGet, "/v0/models", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("models: status %d", recorder.Code)
	}
	names, _ := parsed["models"].([]any)
	if len(names) != 1 || names[0] != "models/gemini-1.5-flash-latest" {
		t.Fatalf("unexpected model list: %v", parsed["models"])
	}
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", recorder.Code)
	}
}
