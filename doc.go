// Package phoneauth drives a phone-number verification flow: the user enters a
// national number, receives a one-time code, types it into six independent
// slots and submits it for verification.
//
// The package is the state owner, not the UI. A presentation layer forwards
// events ([Controller.UpdatePhoneDigits], [Controller.EditOTPSlot],
// [Controller.SubmitPhone], ...) and renders the [Session] snapshots delivered
// by [Controller.Subscribe]. Network work is delegated to a [Backend].
//
// # Concurrency contract
//
// All session mutations serialize through the controller. Backend calls run
// without holding the controller lock; each call is tagged with the session
// generation it started in, and its completion is discarded if the session was
// reset in the meantime. At most one resend countdown is alive at any time.
//
// # Failure contract
//
// Backend failures never escape as errors. They are recorded in
// [Session.LastError] and [Session.LastFailure], and the loading flag is always
// cleared when a call completes.
package phoneauth
