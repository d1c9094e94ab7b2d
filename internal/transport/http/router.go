// Package http exposes the quiz service over gin REST routes and a websocket result feed.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quiz-access-service/internal/app"
)

// NewRouter wires every route. /healthz is the only unauthenticated one.
func NewRouter(service *app.QuizService, auth *Authenticator, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	quizzes := NewQuizHandler(service, logger)
	ws := NewWSHandler(service, logger)

	api := r.Group("/api/v1", auth.Middleware())
	{
		api.POST("/quizzes", quizzes.CreateQuiz)
		api.GET("/quizzes/:id", quizzes.GetQuiz)
		api.PATCH("/quizzes/:id/active", quizzes.SetActive)
		api.DELETE("/quizzes/:id", quizzes.DeleteQuiz)

		api.POST("/quizzes/:id/questions", quizzes.AddQuestions)
		api.PUT("/quizzes/:id/questions/:questionId", quizzes.UpdateQuestion)
		api.DELETE("/quizzes/:id/questions/:questionId", quizzes.DeleteQuestion)

		api.POST("/quizzes/:id/submissions", quizzes.Submit)
		api.GET("/quizzes/:id/submissions", quizzes.ListSubmissions)
		api.GET("/quizzes/:id/submissions/export", quizzes.ExportSubmissions)
		api.GET("/quizzes/:id/status", quizzes.AttemptState)

		api.GET("/submissions/:id", quizzes.Result)
	}
	r.GET("/ws", auth.Middleware(), ws.ServeWS)
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
