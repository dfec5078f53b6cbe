package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// APIResponse is the envelope of every admin API reply.
type APIResponse struct {
	Message string      `json:"message"`
	Status  string      `json:"status"` // "success" or "error"
	Data    interface{} `json:"data,omitempty"`
}

// responder writes APIResponse envelopes and logs server-side failures on
// the API logger.
type responder struct {
	log *zap.Logger
}

func newResponder(logger *zap.Logger) responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return responder{log: logger}
}

func (rs responder) write(w http.ResponseWriter, code int, resp APIResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		rs.log.Error("could not encode admin API response", zap.String("message", resp.Message), zap.Error(err))
		code = http.StatusInternalServerError
		body = []byte(`{"message":"Response could not be encoded","status":"error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (rs responder) ok(w http.ResponseWriter, message string, data interface{}) {
	rs.write(w, http.StatusOK, APIResponse{Message: message, Status: statusSuccess, Data: data})
}

// fail reports a client-visible error without logging it.
func (rs responder) fail(w http.ResponseWriter, code int, message string) {
	rs.write(w, code, APIResponse{Message: message, Status: statusError})
}

// internal logs err and answers 500 with message.
func (rs responder) internal(w http.ResponseWriter, message string, err error) {
	rs.log.Error(message, zap.Error(err))
	rs.fail(w, http.StatusInternalServerError, message)
}

// invalid returns the validator's advisory errors for a rejected settings save.
func (rs responder) invalid(w http.ResponseWriter, errs []string) {
	rs.write(w, http.StatusUnprocessableEntity, APIResponse{
		Message: "Settings were not saved because they are invalid.",
		Status:  statusError,
		Data:    errs,
	})
}
