/*
Package registry holds the process-wide entity and index map registrations.

Entity Registry:
Maps Go entity types to their mapping description:

	registry.Register(meta.MustNew[User]("users", "ID",
	    meta.WithField("Name", "name"),
	))

	m, ok := registry.MetaFor[User]()

A Registry also serves as the persistence layer's EntityMetaProvider, so
independent registries can be used side by side in tests.

Index Map Registry:
Associates logical tables with DynamoDB key patterns:

	registry.RegisterIndexMap("users", map[string]string{
	    "PK": "USER#{key}",
	    "SK": "USER#{key}",
	})

Both registries are thread-safe and should be populated during initialization,
typically in init() functions.
*/
package registry
