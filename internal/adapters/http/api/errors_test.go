package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/okian/crowdpulse/internal/adapters/repository"
	"github.com/okian/crowdpulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given errors raised by handlers", t, func() {
		Convey("Then NewKind keeps op and kind", func() {
			err := NewKind("api.test", ErrBadRequest)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.test: bad request")
		})

		Convey("Then WrapKind exposes both kind and cause", func() {
			cause := errors.New("boom")
			err := WrapKind("api.test", ErrConflict, cause)
			So(errors.Is(err, ErrConflict), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.test: boom")
			So(WrapKind("api.test", ErrConflict, nil), ShouldBeNil)
		})

		Convey("Then Wrap classifies domain errors", func() {
			cases := []struct {
				err    error
				status int
			}{
				{fmt.Errorf("%w: x", model.ErrInvalidFeedback), http.StatusBadRequest},
				{fmt.Errorf("%w: x", model.ErrInvalidEvent), http.StatusBadRequest},
				{fmt.Errorf("%w: x", repository.ErrNotFound), http.StatusNotFound},
				{fmt.Errorf("%w: x", model.ErrEventClosed), http.StatusConflict},
				{errors.New("disk gone"), http.StatusInternalServerError},
			}
			for _, tc := range cases {
				status, _ := statusOf(Wrap("api.test", tc.err))
				So(status, ShouldEqual, tc.status)
			}
			So(Wrap("api.test", nil), ShouldBeNil)
		})
	})
}

func TestGetErrorType(t *testing.T) {
	Convey("Given HTTP status codes", t, func() {
		So(getErrorType(500), ShouldEqual, "server_error")
		So(getErrorType(429), ShouldEqual, "rate_limit")
		So(getErrorType(409), ShouldEqual, "conflict")
		So(getErrorType(404), ShouldEqual, "not_found")
		So(getErrorType(400), ShouldEqual, "client_error")
		So(getErrorType(200), ShouldEqual, "unknown")
	})
}
