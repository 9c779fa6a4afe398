// Package httpapi serves the engine over HTTP with Fiber.
//
// Every route is a thin adapter: decode and validate the JSON body, call the
// matching Engine operation with the request's user context, encode the
// result. Errors are returned to Fiber and rendered by one error handler as
//
//	{"error":{"code":401,"message":"...","timestamp":"...","path":"/auth/me"}}
//
// Engine sentinels map to fixed status codes and messages; the wrapped cause
// of a backend failure is logged, never sent.
package httpapi
