/*
Package ports defines the driven ports (interfaces) of arbor.

These interfaces decouple the navigation core from external implementations,
so path state can live in memory, on disk, in SQLite or in Redis.

# Key Interfaces

  - PathStateStore: persists the per-path UI state of a navigation tree.
  - DistributedLocker: serializes writers of the same state key across processes.
*/
package ports
