// Package approval owns the lifecycle of generated images.
//
// A preview is generated, stored under previews/ and recorded with status
// preview. It then transitions exactly once: approve commits the file into
// the project's image storage, reject purges the file and leaves a tombstone
// record. Only approved images are visible to compositions.
//
// Every mutation of a record holds that record's lock. CleanupOrphans takes
// the same lock and re-reads the record before checking the asset store, so
// it can never delete an image while its approval is still committing.
package approval
