// internal/handler/session_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"challenge-orchestrator/internal/models"
	"challenge-orchestrator/internal/repository"
	"challenge-orchestrator/internal/service"
	"challenge-orchestrator/internal/signature"
)

// AccountHeader identifies the calling account on session-creation requests.
const AccountHeader = "x-account-id"

// autoPostTemplate renders the auto-submitting hidden form that drives the
// browser through a provider round trip.
var autoPostTemplate = template.Must(template.New("autopost").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.FormURL}}">
{{- range $name, $value := .FormFields}}
<input type="hidden" name="{{$name}}" value="{{$value}}"/>
{{- end}}
</form>
</body>
</html>`))

type SessionHandler struct {
	sessions *service.SessionManager
	engine   *service.ChallengeFlowEngine
	status   *service.AuthenticationStatusService
	logger   *zap.Logger
}

func NewSessionHandler(
	sessions *service.SessionManager,
	engine *service.ChallengeFlowEngine,
	status *service.AuthenticationStatusService,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		engine:   engine,
		status:   status,
		logger:   logger,
	}
}

// CreateSession handles POST /api/v1/paymentSessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	accountID := c.GetHeader(AccountHeader)
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing account header"})
		return
	}

	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), accountID, &req)
	if err != nil {
		h.respondError(c, err, "failed to create payment session")
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession handles GET /api/v1/paymentSessions/:id and returns the next
// browser instruction for the session's current state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	instruction, err := h.engine.Instruction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to resolve session instruction")
		return
	}
	h.respondInstruction(c, instruction)
}

// CompleteFingerprint handles POST /api/v1/paymentSessions/:id/fingerprint,
// the browser's fingerprint-iframe callback. An empty form means the
// fingerprint step timed out; the flow proceeds either way.
func (h *SessionHandler) CompleteFingerprint(c *gin.Context) {
	methodData := c.PostForm("threeDSMethodData")

	instruction, err := h.engine.CompleteFingerprintStep(c.Request.Context(), c.Param("id"), methodData)
	if err != nil {
		h.respondError(c, err, "failed to complete fingerprint step")
		return
	}
	h.respondInstruction(c, instruction)
}

// CompleteChallenge handles POST /api/v1/paymentSessions/:id/challenge, the
// browser's challenge-completion callback carrying the provider's fields.
func (h *SessionHandler) CompleteChallenge(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form payload"})
		return
	}
	fields := make(map[string]string, len(c.Request.PostForm))
	for name := range c.Request.PostForm {
		fields[name] = c.Request.PostForm.Get(name)
	}

	instruction, err := h.engine.CompleteChallengeStep(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		h.respondError(c, err, "failed to complete challenge step")
		return
	}
	h.respondInstruction(c, instruction)
}

// Cancel handles POST /api/v1/paymentSessions/:id/cancel, the browser's
// report that the user dismissed the challenge UI.
func (h *SessionHandler) Cancel(c *gin.Context) {
	instruction, err := h.engine.ReportCancelled(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to cancel session")
		return
	}
	c.JSON(http.StatusOK, instruction)
}

// ProxyFrame handles GET /api/v1/paymentSessions/:id/proxyFrame. Partners on
// the proxied framing variant point their challenge iframe here; the service
// renders the auto-submitting form to the provider itself.
func (h *SessionHandler) ProxyFrame(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to load session for proxy frame")
		return
	}
	if session.AcsChallengeURL == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "session has no pending challenge"})
		return
	}

	h.renderAutoPost(c, &models.BrowserInstruction{
		FormURL:    session.AcsChallengeURL,
		FormFields: session.AcsChallengeFields,
	})
}

// GetAuthenticationStatus handles
// GET /api/v1/accounts/:accountId/paymentSessions/:id/status
func (h *SessionHandler) GetAuthenticationStatus(c *gin.Context) {
	var txn *models.TransactionContext
	if raw := c.Query("paymentContext"); raw != "" {
		txn = &models.TransactionContext{}
		if err := json.Unmarshal([]byte(raw), txn); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "incorrectly formatted paymentContext"})
			return
		}
	}

	status, err := h.status.GetAuthenticationStatus(
		c.Request.Context(),
		c.Param("accountId"),
		c.Param("id"),
		c.Query("piid"),
		txn,
	)
	if err != nil {
		h.respondError(c, err, "failed to resolve authentication status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// respondInstruction renders form-type instructions as HTML when the browser
// asked for it, JSON otherwise.
func (h *SessionHandler) respondInstruction(c *gin.Context, instruction *models.BrowserInstruction) {
	wantsHTML := c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
	hasForm := instruction.FormURL != "" && len(instruction.FormFields) > 0

	if wantsHTML && hasForm {
		h.renderAutoPost(c, instruction)
		return
	}
	c.JSON(http.StatusOK, instruction)
}

func (h *SessionHandler) renderAutoPost(c *gin.Context, instruction *models.BrowserInstruction) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := autoPostTemplate.Execute(c.Writer, instruction); err != nil {
		h.logger.Error("failed to render auto-post form", zap.Error(err))
	}
}

func (h *SessionHandler) respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, signature.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session signature"})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "session was updated concurrently, retry"})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
