// Package http contains the REST handlers. Every response uses the uniform
// {success, data?, error?} shape; domain errors map onto HTTP status codes in
// one place (fail) so handlers stay thin.
package http
