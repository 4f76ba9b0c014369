package server

import (
	"context"
	"errors"
	"fmt"

	"TokenLedger/internal/core"
	"TokenLedger/internal/ledger"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CallerHeader carries the authenticated account, set by the fronting
// gateway. It is read from gRPC metadata and from the HTTP header of the
// same name.
const CallerHeader = "x-caller-address"

// errorDomain is the ErrorInfo domain attached to domain failures.
const errorDomain = "tokenledger"

// CallerFromContext resolves the caller from incoming metadata. It is the
// core.IdentityFunc used by the service.
func CallerFromContext(ctx context.Context) (ledger.Address, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ledger.Address{}, core.ErrNoCaller
	}
	vals := md.Get(CallerHeader)
	if len(vals) == 0 || vals[0] == "" {
		return ledger.Address{}, core.ErrNoCaller
	}
	a, err := ledger.ParseAddress(vals[0])
	if err != nil {
		return ledger.Address{}, fmt.Errorf("%w: %v", core.ErrNoCaller, err)
	}
	return a, nil
}

// toStatus maps an operation error onto a gRPC status. Domain failures
// carry an ErrorInfo whose reason is ledger.Reason(err).
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	reason := ledger.Reason(err)
	switch {
	case errors.Is(err, core.ErrNoCaller):
		code, reason = codes.Unauthenticated, "no_caller"
	case errors.Is(err, core.ErrNotMinter):
		code, reason = codes.PermissionDenied, "not_minter"
	case errors.Is(err, core.ErrDuplicateCommand):
		code, reason = codes.AlreadyExists, "duplicate"
	default:
		switch reason {
		case "insufficient_balance", "insufficient_allowance":
			code = codes.FailedPrecondition
		case "invalid_receiver", "invalid_sender", "invalid_approver", "invalid_spender":
			code = codes.InvalidArgument
		case "overflow":
			code = codes.OutOfRange
		default:
			return status.Error(codes.Internal, "internal error")
		}
	}

	st := status.New(code, err.Error())
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

// invalidArgument reports a malformed request field.
func invalidArgument(field string, err error) error {
	return status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
}

// ReasonFromStatus extracts the ErrorInfo reason, or "" when absent.
func ReasonFromStatus(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
