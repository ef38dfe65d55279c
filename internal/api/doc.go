// Package api exposes the REST surface for submitting runs, polling their
// status, and scraping service metrics.
package api
