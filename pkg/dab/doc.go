/*
	Package dab -- short for Data Access Broker -- contains functions that
	load workflow documents from a filesystem and compile them into the
	live task graphs the engine executes.

	Most dab functions return objects from the dagapi package, or live
	values from pkg/task and pkg/datum built out of them.

	Functions that deal with the filesystem take it as a parameter rather
	than touching globals, so tests can hand in a fstest.MapFS and the CLI
	can hand in the real thing.
*/
package dab
