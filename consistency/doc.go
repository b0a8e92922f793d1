/*
Package consistency scopes read and write consistency levels to a single call.

Levels are ordered by strength:

	Any < One < Two < Three < LocalQuorum < EachQuorum < Quorum < All

A Policy carries the process-wide defaults and per-table overrides. A Scope
runs one unit of work under a level and hands the level to the work through
its context.Context:

	scope := consistency.NewScope(policy.ReadLevelFor("users"), policy.WriteLevelFor("users"))

	err := scope.ExecuteWithReadLevel(ctx, func(ctx context.Context) error {
	    level, _ := consistency.ReadLevel(ctx) // Quorum
	    return handle.GetRow(ctx, key)
	}, consistency.Quorum)

Storage backends read the level back with ReadLevel / WriteLevel. Nothing is
stored globally, so an override cannot leak into later or concurrent calls.
*/
package consistency
