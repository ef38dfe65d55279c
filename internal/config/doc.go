// Package config loads the JSON configuration file that wires the service
// together: HTTP address, model backend, SMTP channel, canvas profile, and
// the run store/queue backends. Credentials are resolved from environment
// variables so they never live in the file itself.
package config
