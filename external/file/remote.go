package file

import (
	"context"

	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
	"github.com/teranos/ciconf/internal/httpclient"
	"github.com/teranos/ciconf/metrics"
)

// Remote GETs a fragment over HTTP(S).
type Remote struct {
	Client  *httpclient.SaferClient
	Metrics *metrics.Metrics
}

// Load fetches spec.Location.
func (r *Remote) Load(ctx context.Context, spec external.Specification, _ *external.Context) (*external.Fragment, error) {
	content, err := r.Client.Fetch(ctx, spec.Location)
	r.Metrics.RemoteRequest(outcome(err))
	if err != nil {
		var status *httpclient.StatusError
		if errors.As(err, &status) {
			return nil, external.NewIncludeError(external.ReasonHTTPStatus, spec.Location,
				"Remote file `%s` could not be fetched because of HTTP code `%d` error!", spec.Location, status.Code).WithCause(err)
		}
		return nil, err
	}
	return &external.Fragment{
		Content:  content,
		Location: spec.Location,
		RawURL:   spec.Location,
	}, nil
}

func outcome(err error) string {
	var status *httpclient.StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &status):
		return "status"
	case errors.Is(err, errors.ErrNotFound):
		return "not_found"
	case errors.Is(err, errors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errors.ErrTimeout):
		return "timeout"
	case errors.Is(err, errors.ErrTLS):
		return "tls"
	case errors.Is(err, errors.ErrInvalidRequest):
		return "invalid"
	}
	return "network"
}
