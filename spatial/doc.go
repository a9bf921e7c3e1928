// Package spatial defines the shared contracts that every hierarchical
// spatial index in this module builds on: the Metric/acceleration-cache
// protocol (C1), the Vector and PointId primitives, the IndexNode interface
// shared by every tree family, and the dual-tree traversal engine (C9) that
// coordinates pruning across two collections of the same family.
//
// Concrete metrics, vector representations, and the tree families
// themselves live in sibling packages (metrics, kdtree, vptree, balltree,
// covertree, rbc, dci); this package only specifies what they must agree on.
package spatial
