package wire

import (
	"comm-rendezvous/errors"
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeTable lists how each domain error crosses the wire. Several errors may share a
// code; the receiving side tells them apart by the sentinel text carried in the message.
var codeTable = []struct {
	err  error
	code codes.Code
}{
	{errors.ErrConflictingRegistration, codes.AlreadyExists},
	{errors.ErrSessionNotReady, codes.FailedPrecondition},
	{errors.ErrNotParticipant, codes.FailedPrecondition},
	{errors.ErrUnknownWorker, codes.NotFound},
	{errors.ErrTopologyUnavailable, codes.Unavailable},
	{errors.ErrUnauthenticated, codes.Unauthenticated},
	{errors.ErrUnknownPlacement, codes.InvalidArgument},
	{errors.ErrNoParticipants, codes.InvalidArgument},
	{errors.ErrRendezvousTimeout, codes.DeadlineExceeded},
}

// ToStatus converts a handler error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, c := range codeTable {
		if stderrors.Is(err, c.err) {
			return status.Error(c.code, err.Error())
		}
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus restores the domain error carried by a gRPC status, so callers can keep
// testing remote failures with errors.Is.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, c := range codeTable {
		if st.Code() == c.code && strings.Contains(st.Message(), c.err.Error()) {
			return fmt.Errorf("%w: %s", c.err, remoteDetail(st.Message(), c.err))
		}
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", errors.ErrUnauthenticated, st.Message())
	}
	return err
}

// remoteDetail strips the leading sentinel text so it does not appear twice once re-wrapped.
func remoteDetail(msg string, sentinel error) string {
	return strings.TrimPrefix(strings.TrimPrefix(msg, sentinel.Error()), ": ")
}
