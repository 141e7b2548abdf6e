// Package observability records backlog events as JSON Lines and derives
// metrics and alerts from them. Alerts also look at a snapshot of the live
// backlog supplied by the caller, so the package does not depend on core.
package observability
