/*
Package domain contains the core models of the arbor navigation graph.

It defines the value types shared by every other package: nodes and their
descriptors, edges, path keys, per-path UI state and drag-and-drop instructions.
This package is kept pure and free of I/O, following Hexagonal Architecture
principles.

# Key Entities

  - Node: an identified vertex, optionally wrapping a domain object (Data).
  - NodeArg: the unmaterialized descriptor a connector returns before it is stored.
  - Edges: inbound and outbound adjacency of a node.
  - PathState: open/current/alternate-tree flags keyed by a path, not a node.
  - Instruction: a drag-and-drop gesture to be classified into an Operation.
*/
package domain
