// Package app is the application layer: the reconciliation scheduler that
// drives the periodic jobs, the award coordinator that serializes role
// transitions, and the intake processors for moderation and voice events.
package app
