package apperror

import "net/http"

type Apperror struct {
	code    string
	status  int
	message string
	err     error
}

var (
	ServiceUnavailable  = Apperror{code: "unavailable", status: http.StatusServiceUnavailable, message: "Server Not Ready To Process This Request"}
	ServerError         = Apperror{code: "server", status: http.StatusInternalServerError, message: "Internal Server Error"}
	InvalidRequest      = Apperror{code: "invalid_request", status: http.StatusBadRequest, message: "Invalid Request Body Received"}
	NotFound            = Apperror{code: "not_found", status: http.StatusNotFound, message: "Resource Not Found On This Server"}
	InvalidState        = Apperror{code: "invalid_state", status: http.StatusConflict, message: "Session Is Not In The Required State"}
	ControlModeRejected = Apperror{code: "control_mode", status: http.StatusBadGateway, message: "Device Did Not Acknowledge Command Mode"}
	CommandFailed       = Apperror{code: "command", status: http.StatusBadGateway, message: "Device Command Failed"}
	StreamUnavailable   = Apperror{code: "stream", status: http.StatusServiceUnavailable, message: "Video Stream Could Not Be Opened"}
	NoFrame             = Apperror{code: "no_frame", status: http.StatusNotFound, message: "No Video Frame Available"}
)

func (e Apperror) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e Apperror) SetMessage(message string) Apperror {
	e.message = message
	return e
}

// Wrap attaches the underlying cause while keeping the kind.
func (e Apperror) Wrap(err error) Apperror {
	e.err = err
	return e
}

func (e Apperror) Unwrap() error {
	return e.err
}

// Is matches on kind, so a sentinel still matches after SetMessage or Wrap.
func (e Apperror) Is(target error) bool {
	t, ok := target.(Apperror)

	if !ok {
		return false
	}

	return t.code == e.code
}

func (e Apperror) StatusAndMessage() (int, string) {
	return e.status, e.message
}
