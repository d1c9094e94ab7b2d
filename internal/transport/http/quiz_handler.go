package http

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// QuizHandler serves the REST surface of the quiz service.
type QuizHandler struct {
	service *app.QuizService
	logger  *slog.Logger
}

func NewQuizHandler(service *app.QuizService, logger *slog.Logger) *QuizHandler {
	return &QuizHandler{service: service, logger: logger}
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	content, err := h.service.CreateQuiz(c.Request.Context(), viewerFrom(c), req.draft())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toOwnerResponse(content.Quiz, content.Questions))
}

// GetQuiz returns the full quiz to its owner and the stripped set to everyone else.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	view, err := h.service.Access(c.Request.Context(), c.Param("id"), viewerFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if view.Owner {
		c.JSON(http.StatusOK, toOwnerResponse(view.Quiz, view.Questions))
		return
	}
	c.JSON(http.StatusOK, toPublicResponse(view))
}

func (h *QuizHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "active flag is required")
		return
	}
	if err := h.service.SetActive(c.Request.Context(), viewerFrom(c), c.Param("id"), *req.Active); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	if err := h.service.DeleteQuiz(c.Request.Context(), viewerFrom(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) AddQuestions(c *gin.Context) {
	var req questionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	questions, total, err := h.service.AddQuestions(c.Request.Context(), viewerFrom(c), c.Param("id"), req.Questions)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, questionsResponse{Questions: toSpecs(questions), TotalMarks: total})
}

func (h *QuizHandler) UpdateQuestion(c *gin.Context) {
	var spec domain.QuestionSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	question, total, err := h.service.UpdateQuestion(c.Request.Context(), viewerFrom(c), c.Param("id"), c.Param("questionId"), spec)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, questionsResponse{Questions: []domain.QuestionSpec{question.Spec()}, TotalMarks: total})
}

func (h *QuizHandler) DeleteQuestion(c *gin.Context) {
	total, err := h.service.DeleteQuestion(c.Request.Context(), viewerFrom(c), c.Param("id"), c.Param("questionId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalMarks": total})
}

func (h *QuizHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	quizID := c.Param("id")
	if req.QuizID != "" && req.QuizID != quizID {
		jsonError(c, http.StatusBadRequest, "quizId does not match the path")
		return
	}
	submission, err := h.service.Submit(c.Request.Context(), quizID, viewerFrom(c), app.SubmitRequest{
		Answers:  req.Answers,
		KeyToken: req.KeyToken,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toSubmissionResponse(submission))
}

func (h *QuizHandler) ListSubmissions(c *gin.Context) {
	quiz, subs, err := h.service.ListSubmissions(c.Request.Context(), viewerFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, submissionsResponse{QuizID: quiz.ID, Submissions: subs})
}

// ExportSubmissions streams the owner's submissions as an xlsx workbook.
func (h *QuizHandler) ExportSubmissions(c *gin.Context) {
	quiz, subs, err := h.service.ListSubmissions(c.Request.Context(), viewerFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteSubmissions(&buf, quiz, subs); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+report.FileName(quiz)+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *QuizHandler) AttemptState(c *gin.Context) {
	status, err := h.service.AttemptState(c.Request.Context(), viewerFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Result returns the per-question breakdown to the submitter.
func (h *QuizHandler) Result(c *gin.Context) {
	submission, err := h.service.Result(c.Request.Context(), viewerFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}
