package httpapi

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/jekabolt/waitlist-manager/internal/entity"
)

// errors

type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText string `json:"status"`          // user-level status message
	ErrorText  string `json:"error,omitempty"` // application-level error message, for debugging
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrInternalServerError(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     http.StatusText(http.StatusInternalServerError),
		ErrorText:      err.Error(),
	}
}

// ErrBadGateway reports a payment provider failure.
func ErrBadGateway(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadGateway,
		StatusText:     "Payment provider error.",
		ErrorText:      err.Error(),
	}
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

// signup state

type StateResponse struct {
	State *entity.SignupState `json:"state"`
}

func NewStateResponse(state *entity.SignupState) *StateResponse {
	return &StateResponse{State: state}
}

func (rd *StateResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// checkout

type CheckoutResponse struct {
	RedirectURL string              `json:"redirectUrl,omitempty"`
	Existing    *entity.SignupState `json:"existing,omitempty"`
}

func NewCheckoutResponse(start *entity.CheckoutStart) *CheckoutResponse {
	return &CheckoutResponse{
		RedirectURL: start.RedirectURL,
		Existing:    start.Existing,
	}
}

func (rd *CheckoutResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// count

type CountResponse struct {
	Count int `json:"count"`
}

func (rd *CountResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// generic status

type StatusResponse struct {
	Status string `json:"status"`
}

func (rd *StatusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
