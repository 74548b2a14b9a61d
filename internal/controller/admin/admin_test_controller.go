package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/examprep/internal/controller"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/middleware"
	"github.com/lshigami/examprep/internal/service"
)

type AdminTestController struct {
	adminTestService service.AdminTestService
	testService      service.TestService
	ruleService      service.ScoringRuleService
	reconcileService service.ReconcileService
}

func NewAdminTestController(
	adminTestService service.AdminTestService,
	testService service.TestService,
	ruleService service.ScoringRuleService,
	reconcileService service.ReconcileService,
) *AdminTestController {
	return &AdminTestController{
		adminTestService: adminTestService,
		testService:      testService,
		ruleService:      ruleService,
		reconcileService: reconcileService,
	}
}

func (c *AdminTestController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tests", c.CreateTest)

	rules := rg.Group("/scoring-rules")
	rules.POST("", c.CreateScoringRule)
	rules.GET("", c.ListScoringRules)
	rules.GET("/:exam_id", c.GetScoringRule)
	rules.PUT("/:exam_id", c.UpdateScoringRule)

	attempts := rg.Group("/attempts")
	attempts.GET("", c.ListAttempts)
	attempts.POST("/:attempt_id/abandon", c.ForceAbandon)
	attempts.DELETE("/:attempt_id", c.DeleteAttempt)
	attempts.GET("/:attempt_id/answers", c.GetAttemptAnswers)

	rg.GET("/reconcile/violations", c.FindViolations)
	rg.POST("/reconcile", c.Reconcile)

	rg.GET("/pending-results", c.ListPendingResults)
	rg.POST("/pending-results/recover", c.RecoverPendingResults)
}

// CreateTest godoc
// @Summary (Admin) Publish a recommended test
// @Description Either question_ids gives the curated list, or the filter fields with question_count describe the pool to draw from.
// @Tags Admin - Tests
// @Accept json
// @Produce json
// @Param test_data body dto.CreateTestRequest true "Test definition"
// @Success 201 {object} dto.TestResponse "Test created successfully"
// @Failure 400 {object} dto.ErrorResponse "Invalid input data"
// @Failure 409 {object} dto.ErrorResponse "No question matches the filter"
// @Router /admin/tests [post]
func (c *AdminTestController) CreateTest(ctx *gin.Context) {
	var req dto.CreateTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.RespondBindError(ctx, "Admin CreateTest", err)
		return
	}
	createdBy := ctx.GetHeader(middleware.HeaderUserID)
	if createdBy == "" {
		createdBy = "admin"
	}
	testResp, err := c.testService.CreateTest(ctx.Request.Context(), createdBy, req)
	if err != nil {
		controller.RespondError(ctx, "Admin CreateTest", err)
		return
	}
	ctx.JSON(http.StatusCreated, testResp)
}

// CreateScoringRule godoc
// @Summary (Admin) Set the scoring rule of an exam
// @Tags Admin - Scoring
// @Accept json
// @Produce json
// @Param rule body dto.ScoringRuleRequest true "Marks per outcome"
// @Success 201 {object} dto.ScoringRuleResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid rule"
// @Failure 409 {object} dto.ErrorResponse "Exam already has a rule"
// @Router /admin/scoring-rules [post]
func (c *AdminTestController) CreateScoringRule(ctx *gin.Context) {
	var req dto.ScoringRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.RespondBindError(ctx, "Admin CreateScoringRule", err)
		return
	}
	rule, err := c.ruleService.CreateRule(ctx.Request.Context(), req)
	if err != nil {
		controller.RespondError(ctx, "Admin CreateScoringRule", err)
		return
	}
	ctx.JSON(http.StatusCreated, rule)
}

// ListScoringRules godoc
// @Summary (Admin) List scoring rules
// @Tags Admin - Scoring
// @Produce json
// @Success 200 {array} dto.ScoringRuleResponse
// @Router /admin/scoring-rules [get]
func (c *AdminTestController) ListScoringRules(ctx *gin.Context) {
	rules, err := c.ruleService.ListRules(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, "Admin ListScoringRules", err)
		return
	}
	ctx.JSON(http.StatusOK, rules)
}

// GetScoringRule godoc
// @Summary (Admin) Get the scoring rule of an exam
// @Tags Admin - Scoring
// @Produce json
// @Param exam_id path int true "Exam ID"
// @Success 200 {object} dto.ScoringRuleResponse
// @Failure 404 {object} dto.ErrorResponse "Exam has no rule"
// @Router /admin/scoring-rules/{exam_id} [get]
func (c *AdminTestController) GetScoringRule(ctx *gin.Context) {
	examID, ok := controller.ParseID(ctx, "exam_id")
	if !ok {
		return
	}
	rule, err := c.ruleService.GetRule(ctx.Request.Context(), examID)
	if err != nil {
		controller.RespondError(ctx, "Admin GetScoringRule", err)
		return
	}
	ctx.JSON(http.StatusOK, rule)
}

// UpdateScoringRule godoc
// @Summary (Admin) Change the scoring rule of an exam
// @Description Applies to attempts completed from now on; stored results are not rescored.
// @Tags Admin - Scoring
// @Accept json
// @Produce json
// @Param exam_id path int true "Exam ID"
// @Param rule body dto.ScoringRuleRequest true "Marks per outcome"
// @Success 200 {object} dto.ScoringRuleResponse
// @Failure 404 {object} dto.ErrorResponse "Exam has no rule"
// @Router /admin/scoring-rules/{exam_id} [put]
func (c *AdminTestController) UpdateScoringRule(ctx *gin.Context) {
	examID, ok := controller.ParseID(ctx, "exam_id")
	if !ok {
		return
	}
	var req dto.ScoringRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.RespondBindError(ctx, "Admin UpdateScoringRule", err)
		return
	}
	rule, err := c.ruleService.UpdateRule(ctx.Request.Context(), examID, req)
	if err != nil {
		controller.RespondError(ctx, "Admin UpdateScoringRule", err)
		return
	}
	ctx.JSON(http.StatusOK, rule)
}

// ListAttempts godoc
// @Summary (Admin) List attempts
// @Tags Admin - Attempts
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param test_id query int false "Filter by test"
// @Param status query string false "in_progress, completed or abandoned"
// @Param limit query int false "Page size, default 50"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.AttemptListResponse
// @Router /admin/attempts [get]
func (c *AdminTestController) ListAttempts(ctx *gin.Context) {
	var q dto.AttemptListQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		controller.RespondBindError(ctx, "Admin ListAttempts", err)
		return
	}
	resp, err := c.adminTestService.ListAttempts(ctx.Request.Context(), q)
	if err != nil {
		controller.RespondError(ctx, "Admin ListAttempts", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ForceAbandon godoc
// @Summary (Admin) Abandon an in-progress attempt
// @Tags Admin - Attempts
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} dto.AttemptSummary
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt is not in progress or its result awaits recovery"
// @Router /admin/attempts/{attempt_id}/abandon [post]
func (c *AdminTestController) ForceAbandon(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	summary, err := c.adminTestService.ForceAbandon(ctx.Request.Context(), attemptID)
	if err != nil {
		controller.RespondError(ctx, "Admin ForceAbandon", err)
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// DeleteAttempt godoc
// @Summary (Admin) Delete an attempt with its answers
// @Tags Admin - Attempts
// @Param attempt_id path int true "Attempt ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Router /admin/attempts/{attempt_id} [delete]
func (c *AdminTestController) DeleteAttempt(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	if err := c.adminTestService.DeleteAttempt(ctx.Request.Context(), attemptID); err != nil {
		controller.RespondError(ctx, "Admin DeleteAttempt", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// GetAttemptAnswers godoc
// @Summary (Admin) Inspect the stored answers of an attempt
// @Tags Admin - Attempts
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {array} dto.AnswerValue
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Router /admin/attempts/{attempt_id}/answers [get]
func (c *AdminTestController) GetAttemptAnswers(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	answers, err := c.adminTestService.GetAttemptAnswers(ctx.Request.Context(), attemptID)
	if err != nil {
		controller.RespondError(ctx, "Admin GetAttemptAnswers", err)
		return
	}
	ctx.JSON(http.StatusOK, answers)
}

// FindViolations godoc
// @Summary (Admin) List users with more than one in-progress attempt at a test
// @Tags Admin - Reconcile
// @Produce json
// @Success 200 {array} dto.DuplicateGroup
// @Router /admin/reconcile/violations [get]
func (c *AdminTestController) FindViolations(ctx *gin.Context) {
	groups, err := c.reconcileService.FindViolations(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, "Admin FindViolations", err)
		return
	}
	ctx.JSON(http.StatusOK, groups)
}

// Reconcile godoc
// @Summary (Admin) Repair duplicate in-progress attempts
// @Description Keeps the most recently started attempt of each group and abandons the rest. Safe to run repeatedly.
// @Tags Admin - Reconcile
// @Produce json
// @Success 200 {object} dto.ReconcileReport
// @Router /admin/reconcile [post]
func (c *AdminTestController) Reconcile(ctx *gin.Context) {
	report, err := c.reconcileService.Reconcile(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, "Admin Reconcile", err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// ListPendingResults godoc
// @Summary (Admin) List results held for recovery on this node
// @Tags Admin - Results
// @Produce json
// @Success 200 {array} dto.PendingResult
// @Router /admin/pending-results [get]
func (c *AdminTestController) ListPendingResults(ctx *gin.Context) {
	results, err := c.adminTestService.ListPendingResults(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, "Admin ListPendingResults", err)
		return
	}
	ctx.JSON(http.StatusOK, results)
}

// RecoverPendingResults godoc
// @Summary (Admin) Replay every result held for recovery
// @Tags Admin - Results
// @Produce json
// @Success 200 {object} dto.BulkRecoverResponse
// @Router /admin/pending-results/recover [post]
func (c *AdminTestController) RecoverPendingResults(ctx *gin.Context) {
	resp, err := c.adminTestService.RecoverPendingResults(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, "Admin RecoverPendingResults", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}
