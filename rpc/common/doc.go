// Package common provides core configuration structures and the custom
// leveled logger shared across the router, the worker actors, and the
// single-instance guard.
//
// The package focuses on:
//   - ServerConfig / ClientConfig: configuration carried from the CLI
//     layer down into the router and the admin client.
//   - ILogger: a small leveled-logging interface whose lines carry the
//     name the logger was created with.
package common
