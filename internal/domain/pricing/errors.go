package pricing

import (
	"context"
	"errors"
	"net/http"

	"github.com/televita/rxprice/internal/platform/pbsapi"
)

var (
	// ErrNotFound indicates the price book has no row for the identifier.
	ErrNotFound = errors.New("not found")

	// ErrConfig indicates the server is misconfigured: the price book is
	// missing or does not have the expected shape.
	ErrConfig = errors.New("server configuration error")

	// ErrDataIntegrity indicates source data that cannot be priced.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrInvalidRequest indicates caller input that can never be priced.
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorKind groups failures by how a caller should react to them.
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindNotFound
	KindConfig
	KindDataIntegrity
	KindInvalid
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindConfig:
		return "config"
	case KindDataIntegrity:
		return "data-integrity"
	case KindInvalid:
		return "invalid"
	case KindTimeout:
		return "timeout"
	default:
		return "upstream"
	}
}

// HTTPStatus maps the kind onto a response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConfig, KindDataIntegrity:
		return http.StatusInternalServerError
	case KindInvalid:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Classify maps an error from this package or the PBS client onto a kind.
// Pricing arithmetic cannot fail, so anything not recognised came from an
// upstream call: rejected credentials, unexpected statuses or transport
// errors.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalid
	case errors.Is(err, ErrNotFound), errors.Is(err, pbsapi.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrDataIntegrity), errors.Is(err, pbsapi.ErrMalformedRecord):
		return KindDataIntegrity
	default:
		return KindUpstream
	}
}
