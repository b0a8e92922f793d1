/*
Package operations holds the default persistence collaborators: the Loader,
Persister, Merger, Refresher and Initializer that a persistence.Context
delegates to.

They translate entities to backend-neutral rows:

  - regular entities are one row per primary key, one column per field;
  - clustered entities are one cell of a wide row, keyed by the partition
    component, under a column built from the clustering components;
  - counter fields live in the counter store and are written as increments;
  - join fields store the formatted primary key of their target.

Install wires all of them into a persistence.Configuration:

	cfg := operations.Install(&persistence.Configuration{
	    Handles: backend,
	    Metas:   registry.Default,
	})
*/
package operations
