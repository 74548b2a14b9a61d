package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/examprep/internal/controller"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/middleware"
	"github.com/lshigami/examprep/internal/service"
	"github.com/rs/zerolog/log"
)

type UserTestController struct {
	userTestService service.UserTestService
	testService     service.TestService
	attemptService  service.AttemptService
}

func NewUserTestController(uts service.UserTestService, ts service.TestService, as service.AttemptService) *UserTestController {
	return &UserTestController{
		userTestService: uts,
		testService:     ts,
		attemptService:  as,
	}
}

// RegisterRoutes mounts the user API on rg. Every route needs a user id.
func (c *UserTestController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(middleware.RequireUser())

	rg.GET("/tests", c.GetAllTests)
	rg.GET("/tests/:test_id", c.GetTestDetails)
	rg.POST("/tests/custom", c.CreateCustomTest)
	rg.GET("/pool/stats", c.PoolStats)

	rg.POST("/tests/:test_id/attempts", c.StartAttempt)
	rg.GET("/tests/:test_id/my-attempts", c.GetUserTestAttempts)

	attempts := rg.Group("/attempts/:attempt_id")
	attempts.GET("", c.GetAttempt)
	attempts.PUT("/answers/:question_id", c.RecordAnswer)
	attempts.POST("/complete", c.CompleteAttempt)
	attempts.POST("/abandon", c.AbandonAttempt)
	attempts.POST("/recover", c.RecoverResult)
}

// GetAllTests godoc
// @Summary (User) List available tests
// @Description Recommended tests plus the caller's custom tests, each with the caller's latest attempt.
// @Tags User - Tests
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Success 200 {array} dto.TestSummary
// @Failure 401 {object} dto.ErrorResponse "Missing user id"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /tests [get]
func (c *UserTestController) GetAllTests(ctx *gin.Context) {
	tests, err := c.userTestService.GetAllTests(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		controller.RespondError(ctx, "User GetAllTests", err)
		return
	}
	ctx.JSON(http.StatusOK, tests)
}

// GetTestDetails godoc
// @Summary (User) Get a test
// @Tags User - Tests
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param test_id path int true "Test ID"
// @Success 200 {object} dto.TestResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid test ID"
// @Failure 404 {object} dto.ErrorResponse "Test not found"
// @Router /tests/{test_id} [get]
func (c *UserTestController) GetTestDetails(ctx *gin.Context) {
	testID, ok := controller.ParseID(ctx, "test_id")
	if !ok {
		return
	}
	test, err := c.testService.GetTest(ctx.Request.Context(), middleware.GetUserID(ctx), testID)
	if err != nil {
		controller.RespondError(ctx, "User GetTestDetails", err)
		return
	}
	ctx.JSON(http.StatusOK, test)
}

// CreateCustomTest godoc
// @Summary (User) Build a custom practice test
// @Description Draws questions matching the filter. When fewer questions match than requested the test is created with what matched and pool_exhausted is set.
// @Tags User - Tests
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param request body dto.CreateCustomTestRequest true "Pool filter and question count"
// @Success 201 {object} dto.TestResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request"
// @Failure 409 {object} dto.ErrorResponse "No question matches the filter"
// @Router /tests/custom [post]
func (c *UserTestController) CreateCustomTest(ctx *gin.Context) {
	var req dto.CreateCustomTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.RespondBindError(ctx, "User CreateCustomTest", err)
		return
	}
	test, err := c.testService.CreateCustomTest(ctx.Request.Context(), middleware.GetUserID(ctx), req)
	if err != nil {
		controller.RespondError(ctx, "User CreateCustomTest", err)
		return
	}
	ctx.JSON(http.StatusCreated, test)
}

// PoolStats godoc
// @Summary (User) Count questions matching a filter
// @Tags User - Tests
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param exam_id query int true "Exam ID"
// @Param subject_id query int false "Subject ID"
// @Param topic_ids query []int false "Topic IDs" collectionFormat(multi)
// @Param difficulty query string false "easy, medium, hard or mixed"
// @Success 200 {object} dto.PoolStatsResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid filter"
// @Router /pool/stats [get]
func (c *UserTestController) PoolStats(ctx *gin.Context) {
	var q dto.PoolStatsQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		controller.RespondBindError(ctx, "User PoolStats", err)
		return
	}
	stats, err := c.testService.PoolStats(ctx.Request.Context(), q)
	if err != nil {
		controller.RespondError(ctx, "User PoolStats", err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// StartAttempt godoc
// @Summary (User) Start or resume an attempt
// @Description Returns the caller's in-progress attempt at the test when one exists (200, resumed=true), otherwise starts a new one (201).
// @Tags User - Attempts
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param test_id path int true "Test ID"
// @Success 200 {object} dto.AttemptResponse "Resumed"
// @Success 201 {object} dto.AttemptResponse "Started"
// @Failure 404 {object} dto.ErrorResponse "Test not found"
// @Failure 409 {object} dto.ErrorResponse "Test has no usable questions"
// @Router /tests/{test_id}/attempts [post]
func (c *UserTestController) StartAttempt(ctx *gin.Context) {
	testID, ok := controller.ParseID(ctx, "test_id")
	if !ok {
		return
	}
	attempt, err := c.attemptService.CreateAttempt(ctx.Request.Context(), middleware.GetUserID(ctx), testID)
	if err != nil {
		controller.RespondError(ctx, "User StartAttempt", err)
		return
	}
	status := http.StatusCreated
	if attempt.Resumed {
		status = http.StatusOK
	}
	ctx.JSON(status, attempt)
}

// GetUserTestAttempts godoc
// @Summary (User) List the caller's attempts at a test
// @Tags User - Attempts
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param test_id path int true "Test ID"
// @Success 200 {array} dto.AttemptSummary
// @Router /tests/{test_id}/my-attempts [get]
func (c *UserTestController) GetUserTestAttempts(ctx *gin.Context) {
	testID, ok := controller.ParseID(ctx, "test_id")
	if !ok {
		return
	}
	attempts, err := c.attemptService.ListMyAttempts(ctx.Request.Context(), middleware.GetUserID(ctx), testID)
	if err != nil {
		controller.RespondError(ctx, "User GetUserTestAttempts", err)
		return
	}
	ctx.JSON(http.StatusOK, attempts)
}

// GetAttempt godoc
// @Summary (User) Get an attempt
// @Description The attempt's frozen questions and answers, plus its result once completed.
// @Tags User - Attempts
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} dto.AttemptResponse
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Router /attempts/{attempt_id} [get]
func (c *UserTestController) GetAttempt(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	attempt, err := c.attemptService.GetAttempt(ctx.Request.Context(), middleware.GetUserID(ctx), attemptID)
	if err != nil {
		controller.RespondError(ctx, "User GetAttempt", err)
		return
	}
	ctx.JSON(http.StatusOK, attempt)
}

// RecordAnswer godoc
// @Summary (User) Save the answer to one question
// @Description Replaces any earlier answer to the question. An empty body clears it.
// @Tags User - Attempts
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param attempt_id path int true "Attempt ID"
// @Param question_id path int true "Question ID"
// @Param answer body dto.AnswerRequest true "Answer value"
// @Success 200 {object} dto.AnswerResponse
// @Failure 400 {object} dto.ErrorResponse "Answer does not fit the question"
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt is not in progress"
// @Router /attempts/{attempt_id}/answers/{question_id} [put]
func (c *UserTestController) RecordAnswer(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	var req dto.AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.RespondBindError(ctx, "User RecordAnswer", err)
		return
	}
	resp, err := c.attemptService.RecordAnswer(ctx.Request.Context(), middleware.GetUserID(ctx), attemptID, questionID, req)
	if err != nil {
		controller.RespondError(ctx, "User RecordAnswer", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// CompleteAttempt godoc
// @Summary (User) Complete and score an attempt
// @Description Completing an already completed attempt returns the stored result. When the result cannot be confirmed in the database it is held for recovery and 202 is returned.
// @Tags User - Attempts
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} dto.AttemptResult
// @Success 202 {object} dto.PendingResponse "Result held for recovery"
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt was abandoned"
// @Router /attempts/{attempt_id}/complete [post]
func (c *UserTestController) CompleteAttempt(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	result, err := c.attemptService.CompleteAttempt(ctx.Request.Context(), middleware.GetUserID(ctx), attemptID)
	var pending *service.ResultPendingError
	if errors.As(err, &pending) {
		log.Warn().Err(err).Uint("attemptID", attemptID).Bool("uncertain", pending.Uncertain).
			Msg("User CompleteAttempt: Result held for recovery")
		ctx.JSON(http.StatusAccepted, dto.PendingResponse{
			AttemptID: attemptID,
			Status:    "pending",
			Uncertain: pending.Uncertain,
			Message:   "The result could not be saved yet. Retry completion or call recover.",
		})
		return
	}
	if err != nil {
		controller.RespondError(ctx, "User CompleteAttempt", err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// AbandonAttempt godoc
// @Summary (User) Abandon an attempt
// @Tags User - Attempts
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} dto.AttemptSummary
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt is not in progress"
// @Router /attempts/{attempt_id}/abandon [post]
func (c *UserTestController) AbandonAttempt(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	summary, err := c.attemptService.AbandonAttempt(ctx.Request.Context(), middleware.GetUserID(ctx), attemptID)
	if err != nil {
		controller.RespondError(ctx, "User AbandonAttempt", err)
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// RecoverResult godoc
// @Summary (User) Replay a result held for recovery
// @Tags User - Attempts
// @Produce json
// @Param X-User-ID header string true "Caller's user id"
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} dto.RecoverResponse
// @Failure 409 {object} dto.ErrorResponse "Held result is stale; complete the attempt again"
// @Failure 503 {object} dto.ErrorResponse "Database still unavailable"
// @Router /attempts/{attempt_id}/recover [post]
func (c *UserTestController) RecoverResult(ctx *gin.Context) {
	attemptID, ok := controller.ParseID(ctx, "attempt_id")
	if !ok {
		return
	}
	resp, err := c.attemptService.RecoverResult(ctx.Request.Context(), middleware.GetUserID(ctx), attemptID)
	if err != nil {
		controller.RespondError(ctx, "User RecoverResult", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}
