/*
Package proxy wraps plain entities so that their fields load on demand.

A *Proxy pairs an entity with an Interceptor. The interceptor remembers which
fields were already read from (or written to) storage and asks the owning
persistence context for the others on first access:

	p, err := proxifier.BuildProxy(user, pc, "Name")
	bio, err := proxy.Field[string](ctx, p, "Bio") // loads Bio
	err = p.Set("Name", "Grace")                    // marks Name dirty

Both *Proxy and Materialized implement LoadedOrLazy. Code that accepts either
goes through Get; code that needs a plain entity calls Unwrap. Unwrapping a
value that is not a proxy returns it unchanged.
*/
package proxy
