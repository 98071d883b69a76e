/*
Package expr evaluates the typed conditions used by branching nodes.

# Casting

Both sides of a comparison are cast to the condition's declared type before
comparing:

	number    float64 (numbers and numeric strings)
	boolean   true/1/yes, false/0/no (any case), nonzero numbers are true
	string    everything else; nil becomes ""

A value that cannot be cast makes the condition false. It is not an error.

# Operators

	=  ≠  >  <  ≥  ≤       ordered comparison on the cast values
	contains               case-insensitive substring
	not contains           negation of contains
	start with, end with   prefix and suffix
	empty, not empty       nil, "" or an empty collection; evaluated before casting

ASCII spellings (==, !=, >=, <=) and the words "is" / "is not" are accepted as
aliases.

# Cases

A Case joins its conditions with "and" (the default) or "or". A case with no
conditions always matches. FirstMatch returns the index of the first matching
case, so earlier cases win over later ones even when several would match.
*/
package expr
