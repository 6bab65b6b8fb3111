// Package reactive provides Set and Map collections that report content
// changes through a callback supplied at construction.
//
// Ordinary mutations (Add, Delete, Set, Clear, Update) invoke the callback once
// when, and only when, observable content changed. ReplaceAll swaps the whole
// content without invoking it; it exists for hydration and for applying state
// received from another process, never for business mutations.
//
// Iteration follows insertion order so that serialising a collection that was
// populated with ReplaceAll reproduces the input exactly.
package reactive
