package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/internal/services"
)

// FlowHandler exposes the sign-in/out flow to the kiosk front-end
type FlowHandler struct {
	flow services.SignInFlowInterface
}

func NewFlowHandler(flow services.SignInFlowInterface) *FlowHandler {
	return &FlowHandler{flow: flow}
}

// RegisterRoutes mounts the flow endpoints on rg
func (h *FlowHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reasons", h.GetReasons)

	flow := rg.Group("/flow")
	flow.GET("", h.GetFlow)
	flow.POST("/open", h.Open)
	flow.POST("/student-id", h.SubmitStudentID)
	flow.POST("/class-code", h.SubmitClassCode)
	flow.POST("/reason", h.SelectReason)
	flow.POST("/back", h.Back)
	flow.POST("/acknowledge", h.Acknowledge)
	flow.POST("/cancel", h.Cancel)
}

func (h *FlowHandler) GetReasons(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reasons": models.VisitReasons})
}

func (h *FlowHandler) GetFlow(c *gin.Context) {
	c.JSON(http.StatusOK, h.flow.View())
}

func (h *FlowHandler) Open(c *gin.Context) {
	c.JSON(http.StatusOK, h.flow.Open())
}

func (h *FlowHandler) SubmitStudentID(c *gin.Context) {
	var req models.StudentIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Invalid request", ParseValidationErrors(err), err)
		return
	}

	view, err := h.flow.SubmitStudentID(c.Request.Context(), req.StudentID)
	respondFlow(c, view, err)
}

func (h *FlowHandler) SubmitClassCode(c *gin.Context) {
	var req models.ClassCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Invalid request", ParseValidationErrors(err), err)
		return
	}

	view, err := h.flow.SubmitClassCode(req.ClassCode)
	respondFlow(c, view, err)
}

func (h *FlowHandler) SelectReason(c *gin.Context) {
	var req models.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Invalid request", ParseValidationErrors(err), err)
		return
	}

	view, err := h.flow.SelectReason(c.Request.Context(), req.Reason)
	respondFlow(c, view, err)
}

func (h *FlowHandler) Back(c *gin.Context) {
	view, err := h.flow.Back()
	respondFlow(c, view, err)
}

func (h *FlowHandler) Acknowledge(c *gin.Context) {
	view, err := h.flow.Acknowledge()
	respondFlow(c, view, err)
}

func (h *FlowHandler) Cancel(c *gin.Context) {
	view, err := h.flow.Cancel()
	respondFlow(c, view, err)
}

// respondFlow writes the flow snapshot; rejected actions also carry the reason
func respondFlow(c *gin.Context, view models.FlowView, err error) {
	if err != nil {
		attachError(c, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "flow": view})
		return
	}
	c.JSON(http.StatusOK, view)
}
