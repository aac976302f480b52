// Package scheduler owns the composition job lifecycle.
//
// Submit enforces one non-terminal job per project and queues work; a pool
// of workers claims queued jobs and drives them through the render pipeline.
// All state lives in the store so status reads are plain queries and a
// restarted daemon can recover jobs interrupted mid-render.
package scheduler
