// Package service manages monitored services and their tags, and builds
// the dashboard projection: each service with the alerts that match its
// tags, narrowed by the operator's filters and search term.
package service
