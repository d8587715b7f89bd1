package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/zoneboard/internal/common"
)

// maxBodyBytes bounds request bodies other than settings uploads.
const maxBodyBytes = 16 << 10

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict decodes a single JSON value of at most limit bytes,
// rejecting unknown fields. Oversized bodies yield tooLarge, anything else
// common.ErrInvalidInput.
func decodeStrict(w http.ResponseWriter, r *http.Request, limit int64, tooLarge error, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: request body exceeds %d bytes", tooLarge, mbe.Limit)
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON body", common.ErrInvalidInput)
	}
	return nil
}
