// Package session manages user presence for the matching service. It tracks
// which users are currently connected to a gateway and whether they are
// idle, waiting in the queue, or already matched, backed by Redis so every
// service instance sees the same view.
package session
