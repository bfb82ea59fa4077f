package apperr

import "net/http"

// HTTPStatus maps err to a response status and error code. Errors without
// a kind are internal server errors.
func HTTPStatus(err error) (int, string) {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest, "validation_error"
	case KindAuthentication:
		return http.StatusUnauthorized, "unauthorized"
	case KindConfiguration:
		return http.StatusInternalServerError, "configuration_error"
	case KindForbidden:
		return http.StatusForbidden, "forbidden"
	case KindNotFound:
		return http.StatusNotFound, "not_found"
	case KindConflict:
		return http.StatusConflict, "conflict"
	case KindPlanLimit:
		return http.StatusPaymentRequired, "plan_limit_reached"
	case KindSubscriptionRequired:
		return http.StatusPaymentRequired, "subscription_required"
	case KindExternalProvider:
		return http.StatusBadGateway, "external_provider_error"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}
