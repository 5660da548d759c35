package securestore

// KeywordKey is the reserved pseudo-field for free-text search against
// keyword tokens of searchable encrypted fields.
const KeywordKey = "keyword"

// queryRewriter rewrites caller-supplied predicates that reference
// plaintext values of searchable fields into predicates over the
// corresponding blind-index fields.
type queryRewriter struct {
	profile *Profile
	indexer *BlindIndexer
}

// Rewrite returns a copy of q with searchable-field equality predicates
// replaced by blind-index lookups and the reserved "keyword" key expanded
// into a keyword-token disjunction. Predicates this scheme cannot support
// — non-string values against encrypted fields, range operators — pass
// through unchanged: they will not match ciphertext, which is an
// acknowledged limitation rather than silent corruption.
func (r *queryRewriter) Rewrite(q Document) Document {
	if r.profile == nil || q == nil {
		return copyDocument(q)
	}
	out := make(Document, len(q))
	for key, value := range q {
		switch key {
		case "$or", "$and", "$nor":
			out[key] = r.rewriteBranch(value)
		case KeywordKey:
			if _, ok := value.(string); ok {
				// Expanded below, once the rest of the predicate is known.
				continue
			}
			// Malformed keyword value: pass through rather than widening
			// the match by dropping the predicate.
			out[key] = value
		default:
			if s, ok := value.(string); ok && r.profile.Searchable(key) {
				out[hashField(key)] = r.indexer.SearchHash(s)
			} else {
				out[key] = value
			}
		}
	}
	if kw, ok := q[KeywordKey].(string); ok {
		r.expandKeyword(out, kw)
	}
	return out
}

// rewriteBranch rewrites each element of a boolean combinator's predicate
// array. Malformed combinator values pass through untouched.
func (r *queryRewriter) rewriteBranch(value any) any {
	switch branches := value.(type) {
	case []Document:
		out := make([]Document, len(branches))
		for i, b := range branches {
			out[i] = r.Rewrite(b)
		}
		return out
	case []any:
		out := make([]any, len(branches))
		for i, b := range branches {
			if d, ok := b.(Document); ok {
				out[i] = r.Rewrite(d)
			} else {
				out[i] = b
			}
		}
		return out
	default:
		return value
	}
}

// expandKeyword replaces the reserved keyword key with a disjunction of
// token matches across every searchable field. When the predicate already
// carries an $or clause, both must hold, so they are joined under $and.
func (r *queryRewriter) expandKeyword(out Document, kw string) {
	token := r.indexer.SearchHash(kw)
	var disjunction []Document
	for _, field := range r.profile.SearchableFields() {
		disjunction = append(disjunction, Document{tokensField(field): token})
	}
	if len(disjunction) == 0 {
		return
	}
	if existing, ok := out["$or"]; ok {
		// Results must satisfy the original disjunction AND contain the
		// keyword, so both clauses move under $and.
		delete(out, "$or")
		and := []Document{
			{"$or": existing},
			{"$or": disjunction},
		}
		if prior, ok := toBranches(out["$and"]); ok {
			delete(out, "$and")
			and = append(prior, and...)
		}
		out["$and"] = and
		return
	}
	out["$or"] = disjunction
}
