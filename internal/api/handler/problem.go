package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"
)

const problemContentType = "application/problem+json"

func abortProblem(c *gin.Context, problem *problems.Problem) {
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(problem.Status, problem)
}

// Problem writes an RFC 7807 body with the given status and detail.
func Problem(c *gin.Context, status int, kind, detail string) {
	abortProblem(c, problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(kind).
		WithDetail(detail))
}

func badRequest(c *gin.Context, detail string) {
	Problem(c, http.StatusBadRequest, "validation_error", detail)
}

func notFound(c *gin.Context, detail string) {
	Problem(c, http.StatusNotFound, "not_found", detail)
}

func internalError(c *gin.Context, err error) {
	abortProblem(c, problems.NewStatusProblem(http.StatusInternalServerError).
		WithInstance(c.Request.URL.Path).
		WithType("internal_error").
		WithError(err))
}
