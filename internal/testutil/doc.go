// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing graph states and wiring collaborators
// (scripted model gateways, failing stores, static persona indexes). They are
// not intended for production usage.
package testutil
