package acp

import (
	"github.com/coder/acp-go-sdk"
)

// AutoApprovePermission selects an allow option, or the first option when
// there is none. With no options the request is cancelled.
func AutoApprovePermission(options []acp.PermissionOption) acp.RequestPermissionResponse {
	if resp, ok := selectOption(options, acp.PermissionOptionKindAllowOnce, acp.PermissionOptionKindAllowAlways); ok {
		return resp
	}
	if len(options) > 0 {
		return selectedResponse(options[0].OptionId)
	}
	return CancelledPermissionResponse()
}

// RejectPermission selects a one-time reject option, falling back to any
// reject option. With none available the request is cancelled, which the
// agent also treats as a refusal.
func RejectPermission(options []acp.PermissionOption) acp.RequestPermissionResponse {
	if resp, ok := selectOption(options, acp.PermissionOptionKindRejectOnce, acp.PermissionOptionKindRejectAlways); ok {
		return resp
	}
	return CancelledPermissionResponse()
}

// AllowPermission selects a one-time allow option, falling back to any allow
// option. "Always" options are only picked when nothing narrower exists so
// that every later call is still asked.
func AllowPermission(options []acp.PermissionOption) acp.RequestPermissionResponse {
	if resp, ok := selectOption(options, acp.PermissionOptionKindAllowOnce, acp.PermissionOptionKindAllowAlways); ok {
		return resp
	}
	return CancelledPermissionResponse()
}

// selectOption returns the first option of the earliest matching kind.
func selectOption(options []acp.PermissionOption, kinds ...acp.PermissionOptionKind) (acp.RequestPermissionResponse, bool) {
	for _, kind := range kinds {
		for _, opt := range options {
			if opt.Kind == kind {
				return selectedResponse(opt.OptionId), true
			}
		}
	}
	return acp.RequestPermissionResponse{}, false
}

func selectedResponse(id acp.PermissionOptionId) acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Selected: &acp.RequestPermissionOutcomeSelected{OptionId: id},
		},
	}
}

// CancelledPermissionResponse returns a cancelled permission response.
func CancelledPermissionResponse() acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
	}
}
