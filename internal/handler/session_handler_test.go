// internal/handler/session_handler_test.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"challenge-orchestrator/internal/models"
	"challenge-orchestrator/internal/repository"
	"challenge-orchestrator/internal/service"
	"challenge-orchestrator/internal/signature"
)

type stubProvider struct{}

func (stubProvider) CheckEnrollment(context.Context, *models.PaymentSession, string, string) (*models.EnrollmentDecision, error) {
	return &models.EnrollmentDecision{ChallengeRequired: true, ChallengeType: models.ChallengeTypeThreeDSTwo}, nil
}

func (stubProvider) GetMethodData(context.Context, *models.PaymentSession) (*models.MethodData, error) {
	return &models.MethodData{URL: "https://acs.test/method", Fields: map[string]string{"threeDSMethodData": "payload"}}, nil
}

func (stubProvider) GetChallengeData(context.Context, *models.PaymentSession, string) (*models.ChallengeData, error) {
	return &models.ChallengeData{URL: "https://acs.test/challenge", Fields: map[string]string{"creq": "payload"}}, nil
}

func (stubProvider) GetDisposition(context.Context, *models.PaymentSession, map[string]string) (*models.Disposition, error) {
	return &models.Disposition{Status: models.ChallengeStatusSucceeded}, nil
}

type stubInstruments struct{}

func (stubInstruments) GetInstrument(_ context.Context, _, piID string) (*models.Instrument, error) {
	return &models.Instrument{ID: piID, AccountID: "acct-1", RequiredChallenge: []string{"3ds2"}}, nil
}

type stubOrders struct{}

func (stubOrders) AttachChallengeEvidence(context.Context, string, *models.ChallengeEvidence) error {
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zap.NewNop()
	store := repository.NewRedisSessionStore(rdb, time.Hour)
	signer := signature.NewSigner([]byte("test-key"), "challenge-orchestrator")
	toggles := service.Toggles{AmbiguousStatusHeuristic: true}

	sessions := service.NewSessionManager(store, nil, stubProvider{}, stubInstruments{}, signer, service.DefaultFramePolicyConfig(), toggles, log)
	notifier := service.NewAttachmentNotifier(stubOrders{}, log)
	engine := service.NewChallengeFlowEngine(sessions, stubProvider{}, notifier, signer, toggles, "https://px.test", 10*time.Second, log)
	ownership := service.NewOwnershipVerifier(stubInstruments{}, log)
	integrity := service.NewTransactionIntegrityVerifier(toggles, log)
	status := service.NewAuthenticationStatusService(sessions, ownership, integrity, log)

	h := NewSessionHandler(sessions, engine, status, log)

	router := gin.New()
	v1 := router.Group("/api/v1")
	{
		v1.POST("/paymentSessions", h.CreateSession)
		v1.GET("/paymentSessions/:id", h.GetSession)
		v1.POST("/paymentSessions/:id/fingerprint", h.CompleteFingerprint)
		v1.POST("/paymentSessions/:id/challenge", h.CompleteChallenge)
		v1.POST("/paymentSessions/:id/cancel", h.Cancel)
		v1.GET("/paymentSessions/:id/proxyFrame", h.ProxyFrame)
		v1.GET("/accounts/:accountId/paymentSessions/:id/status", h.GetAuthenticationStatus)
	}
	return router
}

func createSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	body := `{
		"paymentInstrumentId": "pi-1",
		"partner": "webblends",
		"country": "US",
		"currency": "USD",
		"amount": 100,
		"challengeScenario": "PaymentTransaction"
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AccountHeader, "acct-1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body = %s", w.Code, w.Body.String())
	}
	var session models.PaymentSession
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("create session response: %v", err)
	}
	return session.ID
}

func TestCreateSessionRequiresAccountHeader(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateSessionRejectsInvalidBody(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions", strings.NewReader(`{"partner":"webblends"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AccountHeader, "acct-1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetSessionUnknownID(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/paymentSessions/nope", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestChallengeFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	id := createSession(t, router)

	// First instruction: fingerprint iframe.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/paymentSessions/"+id, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get session status = %d, body = %s", w.Code, w.Body.String())
	}
	var inst models.BrowserInstruction
	if err := json.Unmarshal(w.Body.Bytes(), &inst); err != nil {
		t.Fatalf("instruction response: %v", err)
	}
	if inst.Type != models.InstructionFingerprintIframe {
		t.Fatalf("instruction type = %v, want fingerprint iframe", inst.Type)
	}

	// Empty fingerprint callback advances to the challenge.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions/"+id+"/fingerprint", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("fingerprint status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &inst); err != nil {
		t.Fatalf("instruction response: %v", err)
	}
	if inst.Type != models.InstructionChallengeIframe {
		t.Fatalf("instruction type = %v, want challenge iframe", inst.Type)
	}

	// Challenge completion callback lands a terminal instruction.
	form := url.Values{"cres": {"payload"}}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions/"+id+"/challenge", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("challenge status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &inst); err != nil {
		t.Fatalf("instruction response: %v", err)
	}
	if inst.Type != models.InstructionTerminal || inst.Status != models.ChallengeStatusSucceeded {
		t.Errorf("instruction = %v/%v, want terminal Succeeded", inst.Type, inst.Status)
	}

	// Authentication status confirms the session verified.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acct-1/paymentSessions/"+id+"/status?piid=pi-1", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, body = %s", w.Code, w.Body.String())
	}
	var status models.AuthenticationStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("status response: %v", err)
	}
	if !status.Verified || status.Status != models.ChallengeStatusSucceeded {
		t.Errorf("status = %+v, want verified Succeeded", status)
	}
}

func TestGetSessionRendersHTMLWhenAsked(t *testing.T) {
	router := newTestRouter(t)
	id := createSession(t, router)

	// Move the session into its challenge step.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions/"+id+"/fingerprint", strings.NewReader("threeDSMethodData=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("fingerprint status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/paymentSessions/"+id, nil)
	req.Header.Set("Accept", "text/html")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `action="https://acs.test/challenge"`) {
		t.Errorf("auto-post form missing challenge action, body = %s", body)
	}
	if !strings.Contains(body, `name="creq"`) {
		t.Errorf("auto-post form missing provider field, body = %s", body)
	}
}

func TestProxyFrameBeforeChallengeStarts(t *testing.T) {
	router := newTestRouter(t)
	id := createSession(t, router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/paymentSessions/"+id+"/proxyFrame", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 before the challenge step starts", w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	router := newTestRouter(t)
	id := createSession(t, router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/paymentSessions/"+id+"/cancel", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var inst models.BrowserInstruction
	if err := json.Unmarshal(w.Body.Bytes(), &inst); err != nil {
		t.Fatalf("cancel response: %v", err)
	}
	if inst.Status != models.ChallengeStatusCancelled {
		t.Errorf("status = %v, want Cancelled", inst.Status)
	}
}
