package middleware

import (
	"net/http"

	"github.com/channellicense/channellicense/internal/api/models"
)

// writeProblem writes a problem of kind for r. The response package depends
// on this one, so middleware cannot use it.
func writeProblem(w http.ResponseWriter, r *http.Request, kind models.ProblemKind, detail string) {
	problem := kind.New(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}
