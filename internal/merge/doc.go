// Package merge folds several GraphQL requests of the same operation kind into
// one composite request and splits the composite result back apart.
//
// # Namespacing
//
// Member i of a composite owns the prefix "__r<i>_". Every top-level response
// key, every variable and every fragment name of that member is rewritten with
// its prefix, so no two members can collide in the composite document:
//
//	query A($id: ID!) { user(id: $id) { name } }        // member 0
//	query B($id: ID!) { me: viewer { ...F } }           // member 1
//	fragment F on User { id }
//
// becomes
//
//	query ($__r0_id: ID!, $__r1_id: ID!) {
//	  __r0_user: user(id: $__r0_id) { name }
//	  __r1_me: viewer { ...__r1_F }
//	}
//	fragment __r1_F on User { id }
//
// Fragment spreads that appear directly in an operation's root selection set
// are inlined so that the fields they contribute are namespaced as well. Only
// fragments reachable from the selected operation are carried over.
//
// # Remap table
//
// Merge records, for each namespaced top-level key, the owning member and the
// key the member asked for. Dispatch uses the table to route data and errors.
// An error whose path starts at a namespaced key goes to its member only, with
// the path root restored; any other error is copied to every member.
//
// Both directions are pure functions of their inputs: requests are never
// mutated, and merging the same ordered members twice yields identical output.
package merge
