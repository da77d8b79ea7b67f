package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sakif/advice-board/internal/apperror"
)

// maxBodyBytes caps request bodies. The largest valid body is an advice
// with 5000 characters of content, well under this.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are ignored, so a client echoing back _createdBy or
// _isMine cannot change anything: those fields have nowhere to land.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("", "request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		}
		return apperror.ValidationFailed("", "request body must be valid JSON")
	}
	return nil
}
