package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/middleware"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"github.com/quocanhngo/studymate/internal/service"
	"github.com/quocanhngo/studymate/pkg/storage"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRoutes mounts the auth endpoints on an /api/v1 group
func (h *AuthHandler) RegisterRoutes(api *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/verify-otp", h.VerifyOTP)
		authGroup.POST("/resend-otp", h.ResendOTP)
		authGroup.GET("/otp/status", h.OTPStatus)
		authGroup.POST("/otp/cancel", h.CancelOTP)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/google", h.GoogleLogin)
		authGroup.POST("/forgot-password", h.ForgotPassword)
		authGroup.POST("/reset-password", h.ResetPassword)
	}

	protected := api.Group("/auth")
	protected.Use(authMiddleware)
	{
		protected.POST("/logout", h.Logout)
		protected.GET("/profile", h.GetProfile)
		protected.PUT("/profile", h.UpdateProfile)
		protected.POST("/device", h.RegisterDevice)
	}
}

// respondError maps service errors to HTTP responses. Errors it does not
// recognise are answered with fallback.
func respondError(c *gin.Context, err error, fallback int) {
	var otpErr *service.OTPError
	if errors.As(err, &otpErr) {
		resp := model.OTPErrorResponse{
			Error:   "Invalid verification code",
			Message: otpErr.Result.Message(),
			Reason:  otpErr.Result.String(),
		}
		if otpErr.Result.Status == otp.StatusMismatch {
			remaining := otpErr.Result.Remaining
			resp.RemainingAttempts = &remaining
		}
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		secs := int(limited.RetryAfter.Seconds() + 0.999)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{Error: "Too many requests", Message: limited.Error()})
		return
	}

	status := fallback
	switch {
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrVerificationPending):
		status = http.StatusConflict
	case errors.Is(err, service.ErrStatusUnavailable):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailNotVerified):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrDeliveryFailed):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrAvatarDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupportedImage):
		status = http.StatusBadRequest
	}
	c.JSON(status, model.ErrorResponse{Error: err.Error()})
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return false
	}
	return true
}

// Register godoc
// @Summary Register a new student (sends a signup code)
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.RegisterRequest true "Register request"
// @Success 201 {object} model.OTPSentResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse "email taken, or a code is still pending"
// @Failure 429 {object} model.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// VerifyOTP godoc
// @Summary Verify email with the signup code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.VerifyOTPRequest true "Verify OTP request"
// @Success 200 {object} model.LoginResponse
// @Failure 400 {object} model.OTPErrorResponse
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req model.VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ResendOTP godoc
// @Summary Resend the signup code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.ResendOTPRequest true "Resend OTP request"
// @Success 200 {object} model.OTPSentResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Router /auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req model.ResendOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.ResendOTP(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// OTPStatus godoc
// @Summary Check whether a signup code is still outstanding
// @Tags Auth
// @Produce json
// @Param email query string true "Email"
// @Param purpose query string true "signup"
// @Success 200 {object} model.OTPStatusResponse
// @Router /auth/otp/status [get]
func (h *AuthHandler) OTPStatus(c *gin.Context) {
	var req model.OTPStatusRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	resp, err := h.authService.OTPStatus(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelOTP godoc
// @Summary Withdraw the outstanding code of an abandoned flow
// @Description The delivered code must be presented; a wrong code counts as a failed attempt
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.CancelOTPRequest true "Cancel request"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.OTPErrorResponse
// @Router /auth/otp/cancel [post]
func (h *AuthHandler) CancelOTP(c *gin.Context) {
	var req model.CancelOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.CancelOTP(c.Request.Context(), req); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Code cancelled"})
}

// Login godoc
// @Summary Login with email and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.LoginRequest true "Login request"
// @Success 200 {object} model.LoginResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GoogleLogin godoc
// @Summary Login with Google
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.GoogleLoginRequest true "Google login request"
// @Success 200 {object} model.LoginResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/google [post]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req model.GoogleLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.LoginWithGoogle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ForgotPassword godoc
// @Summary Request a password reset code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.ForgotPasswordRequest true "Forgot password request"
// @Success 200 {object} model.OTPSentResponse
// @Failure 429 {object} model.ErrorResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.ForgotPassword(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ResetPassword godoc
// @Summary Reset password with the reset code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.ResetPasswordRequest true "Reset password request"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.OTPErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Password reset successfully"})
}

// Logout godoc
// @Summary Logout
// @Description Revoke the current token
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.Claims(c)); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Logged out successfully"})
}

// GetProfile godoc
// @Summary Get current user profile
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.UserResponse
// @Router /auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	profile, err := h.authService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateProfile godoc
// @Summary Update user profile
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param name formData string false "Display name"
// @Param is_notification_enabled formData bool false "Push notifications"
// @Param avatar formData file false "Avatar image file"
// @Success 200 {object} model.UserResponse
// @Router /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	req := model.UpdateProfileRequest{Name: c.PostForm("name")}
	if len(req.Name) > 100 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: "name must be at most 100 characters"})
		return
	}
	if raw, ok := c.GetPostForm("is_notification_enabled"); ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: "is_notification_enabled must be a boolean"})
			return
		}
		req.IsNotificationEnabled = &enabled
	}

	var (
		file   multipart.File
		header *multipart.FileHeader
	)
	if fh, err := c.FormFile("avatar"); err == nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Failed to read file", Message: err.Error()})
			return
		}
		defer f.Close()
		file, header = f, fh
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, req, file, header)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, user)
}

// RegisterDevice godoc
// @Summary Register device for push notifications
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "Register device request"
// @Success 200 {object} model.SuccessResponse
// @Router /auth/device [post]
func (h *AuthHandler) RegisterDevice(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var req model.RegisterDeviceRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.RegisterDevice(c.Request.Context(), userID, req); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Device registered successfully"})
}
