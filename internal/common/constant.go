package common

// AuthorizationHeader carries the bearer access token on inbound requests.
const AuthorizationHeader = "Authorization"

// BearerPrefix precedes the access token inside AuthorizationHeader.
const BearerPrefix = "Bearer "

// RequestIDHeader is echoed back on every response and attached to error bodies.
const RequestIDHeader = "X-Request-Id"
