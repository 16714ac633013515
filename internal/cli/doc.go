// Package cli implements leavectl, a terminal client for the leave API.
//
// workdays and notice run offline. Every other command talks to the API with
// the caller's bearer token, read from --token, LEAVE_TOKEN or a hidden
// prompt.
package cli
