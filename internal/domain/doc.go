// Package domain models crowd-verified disaster reports and the evacuation
// data that hangs off them.
//
// # Lifecycle
//
// A report starts PENDING. The first three verification responses decide it:
// two confirmations make it VERIFIED, two denials make it FALSE_ALARM and cost
// the reporter 10 trust points. Independently, once the number of
// confirmations reaches the report's emergency threshold the alert status
// moves from INITIAL to EMERGENCY_ACTIVE exactly once and the status is forced
// to VERIFIED, even over an earlier FALSE_ALARM. Authorities resolve reports;
// RESOLVED is terminal on both axes and rows are never deleted.
//
//	status:       PENDING ─┬─> VERIFIED ────┬─> RESOLVED
//	                       └─> FALSE_ALARM ─┘
//	                              └─(escalation)─> VERIFIED
//	alert_status: INITIAL ─> EMERGENCY_ACTIVE ─> RESOLVED
//
// Status values are closed enumerations with exhaustive transition checks
// ([DisasterStatus.CanTransitionTo], [AlertStatus.CanTransitionTo]).
//
// # Anonymity
//
// Location samples carry only a keyed one-way hash of the device id and are
// unreachable for analysis after 10 minutes.
//
// # Errors
//
// [ValidationError], [IneligibleError] and [ErrNotFound] form the error
// taxonomy shared by every service; transport adapters map them to status
// codes. Ownership violations are reported as not found.
package domain
