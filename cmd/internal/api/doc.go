// Package api exposes the HTTP surface: authentication, user search,
// projects, memberships, access sessions, and recipe composition.
//
// Every response is JSON. Errors use a single envelope,
// {"error":{"code":"...","message":"..."}}, with stable codes so clients
// can branch without parsing messages.
package api
