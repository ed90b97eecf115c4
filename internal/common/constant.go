// Package common contains shared constants and sentinel errors used across
// server components.
package common

// AuthorizationHeader is the HTTP header carrying the access token on
// authenticated requests.
const AuthorizationHeader = "Authorization"

// AuthScheme is the expected authorization scheme prefix.
const AuthScheme = "Bearer"
