// Package workflow holds the admission and transfer lifecycles.
//
// Both are plain status fields moved by explicit transition calls. A Machine
// lists the allowed edges; the Store applies a transition with the record
// locked and writes a Transition row next to it; the Service checks the
// caller's permission on the school that owns the current stage before the
// edge is validated.
//
// Applications belong to one school. A transfer belongs to its source school
// until the source approves it and to the destination school afterwards, so
// staff on both sides can see it but each side only moves its own stages.
package workflow
