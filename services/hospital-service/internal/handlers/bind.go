package handlers

import (
	"net/http"

	"github.com/knocktern/hospital-booking/libs/httpx"
)

// bind decodes and validates a JSON body, writing the 400 itself.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		a.fail(w, r, err)
		return false
	}
	return true
}

// bindOptional is bind for endpoints whose body may be empty.
func (a *API) bindOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return a.bind(w, r, dst)
}
