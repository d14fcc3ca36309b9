package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cookwithme/internal/auth"
	"cookwithme/internal/models"
	"cookwithme/internal/service/assistant"
)

// Handler wires HTTP routes to the assistant service and session manager.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service) *Handler {
	return &Handler{
		assistant: service,
		auth:      authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)
	router.POST("/signup", h.signup)
	router.POST("/login", h.login)
	router.GET("/check-auth", h.checkAuth)

	authMW := h.auth.Middleware()
	csrfMW := h.auth.CSRFMiddleware()
	router.POST("/logout", authMW, csrfMW, h.logout)
	router.GET("/getconversation", authMW, h.getConversations)
	router.GET("/getconversation/:id/messages", authMW, h.getConversationMessages)
	router.POST("/ask-cooking-assistant", authMW, csrfMW, h.askCookingAssistant)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "CookWithMe API is running",
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "exists"})
		case errors.Is(err, assistant.ErrMissingCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			// Wrapped storage detail stays on the server side.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		}
		return
	}
	// Signup logs the user in directly, matching the login flow.
	if !h.issueSession(c, user.ID) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    userPayload(user),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, assistant.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if !h.issueSession(c, user.ID) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userPayload(user),
	})
}

func (h *Handler) logout(c *gin.Context) {
	if token, ok := auth.SessionTokenFromContext(c); ok {
		_ = h.auth.Destroy(c.Request.Context(), token)
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) checkAuth(c *gin.Context) {
	userID, ok := h.auth.ResolveRequest(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"islogin": false, "user": nil})
		return
	}
	user, err := h.assistant.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"islogin": false, "user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"islogin": true, "user": userPayload(user)})
}

func (h *Handler) getConversations(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conversations, err := h.assistant.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}
	if conversations == nil {
		conversations = make([]*models.ConversationWithTurns, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": conversations,
	})
}

func (h *Handler) getConversationMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	turns, err := h.assistant.ListTurns(c.Request.Context(), conversationID, userID)
	if err != nil {
		if errors.Is(err, assistant.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversation messages"})
		return
	}
	if turns == nil {
		turns = make([]*models.Turn, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"messages":       turns,
		"conversationId": conversationID,
	})
}

type askRequest struct {
	Question       string `json:"question"`
	ConversationID int64  `json:"conversationId"`
	Format         string `json:"format"`
}

func (h *Handler) askCookingAssistant(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.assistant.Ask(c.Request.Context(), userID, req.Question, req.ConversationID, assistant.AnswerFormat(req.Format))
	if err != nil {
		h.writeAskError(c, err)
		return
	}

	payload := gin.H{
		"success":           true,
		"conversationId":    result.Conversation.ID,
		"conversationTitle": result.Conversation.Title,
		"createdAt":         result.Turn.CreatedAt,
	}
	if result.Recipe != nil {
		payload["recipe"] = result.Recipe
	} else {
		payload["answer"] = result.Answer
	}
	c.JSON(http.StatusOK, payload)
}

// writeAskError maps orchestrator failures to the HTTP taxonomy. Internal
// detail (driver errors, provider payloads) never crosses this boundary.
func (h *Handler) writeAskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion), errors.Is(err, assistant.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, assistant.ErrInvalidAnswer):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant returned an unusable answer"})
	case errors.Is(err, assistant.ErrStorage):
		// The model call succeeded; the caller must learn the answer may not
		// have been saved, distinctly from a model failure.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer generated but could not be saved"})
	case errors.Is(err, assistant.ErrProvider):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return 0, false
	}
	return userID, true
}

// issueSession creates a session plus CSRF token and sets both cookies.
// Returns false after writing an error response.
func (h *Handler) issueSession(c *gin.Context, userID int64) bool {
	token, err := h.auth.Create(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return false
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return false
	}
	h.setAuthCookies(c, token, csrfToken)
	return true
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, sessionToken, csrfToken string) {
	ttl := int(h.auth.SessionTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.SessionCookieName(),
		Value:    sessionToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.SessionCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.SessionCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
