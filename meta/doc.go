/*
Package meta describes how entity types map onto storage.

An EntityMeta is built once per entity type, usually at init time, and is
immutable afterwards:

	var userMeta = meta.MustNew[User]("users", "ID",
	    meta.WithField("Name", "name"),
	    meta.WithLazyField("Bio", "bio"),
	    meta.WithCounterField("Visits", true),
	    meta.WithJoinField("Manager", "manager_id", false, true),
	)

Clustered entities live as cells of a wide row. Their id is a struct whose
partition component selects the row and whose clustering components name the
column:

	type TweetKey struct {
	    UserID string
	    At     int64
	}

	var tweetMeta = meta.MustNew[Tweet]("timeline", "Key",
	    meta.WithClustering("UserID", "At"),
	    meta.WithField("Text", "text"),
	)

The invoker functions (GetValue, SetValue, PrimaryKey, RowKey, ColumnName)
read and write entity fields by reflection. SetValue coerces raw storage
values into the field type with mapstructure.
*/
package meta
