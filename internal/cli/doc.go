// Package cli is the dsipipe command tree. It turns flags and environment
// variables into an app.Config and hands off to the app package.
package cli
