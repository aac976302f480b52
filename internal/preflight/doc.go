// Package preflight provides readiness checks for the filesystem paths,
// external binaries and generator backend montage depends on.
//
// The daemon runs RunAll at startup and logs failures; the /api/status
// endpoint reports the same results so "montage status" can display them.
// Checks for optional backends are skipped when they are not configured.
package preflight
