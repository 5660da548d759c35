package securestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryCollection_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")

	id, err := coll.InsertOne(ctx, Document{"status": "active", "n": 1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = coll.InsertMany(ctx, []Document{
		{"status": "active", "n": 2},
		{"status": "closed", "n": 3},
	})
	require.NoError(t, err)

	docs, err := coll.Find(ctx, Document{"status": "active"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	doc, err := coll.FindOne(ctx, Document{"n": 3}, nil)
	require.NoError(t, err)
	require.Equal(t, "closed", doc["status"])

	_, err = coll.FindOne(ctx, Document{"n": 99}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCollection_AssignsID(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")

	id, err := coll.InsertOne(ctx, Document{"a": 1})
	require.NoError(t, err)

	doc, err := coll.FindOne(ctx, Document{"_id": id}, nil)
	require.NoError(t, err)
	require.Equal(t, id, doc["_id"])

	// Caller-supplied identity is preserved.
	id2, err := coll.InsertOne(ctx, Document{"_id": "chosen"})
	require.NoError(t, err)
	require.Equal(t, "chosen", id2)
}

func TestMemoryCollection_Operators(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	_, err := coll.InsertMany(ctx, []Document{
		{"n": 1, "tag": "a", "tokens": []string{"x", "y"}},
		{"n": 5, "tag": "b"},
		{"n": 10, "tag": "c"},
	})
	require.NoError(t, err)

	count := func(filter Document) int64 {
		n, err := coll.CountDocuments(ctx, filter)
		require.NoError(t, err)
		return n
	}

	require.EqualValues(t, 2, count(Document{"n": Document{"$gt": 1}}))
	require.EqualValues(t, 2, count(Document{"n": Document{"$gte": 5}}))
	require.EqualValues(t, 1, count(Document{"n": Document{"$lt": 5}}))
	require.EqualValues(t, 2, count(Document{"n": Document{"$lte": 5}}))
	require.EqualValues(t, 2, count(Document{"n": Document{"$ne": 5}}))
	require.EqualValues(t, 2, count(Document{"tag": Document{"$in": []any{"a", "b"}}}))
	require.EqualValues(t, 1, count(Document{"tokens": Document{"$exists": true}}))
	require.EqualValues(t, 2, count(Document{"tokens": Document{"$exists": false}}))

	// Equality against an array matches containment.
	require.EqualValues(t, 1, count(Document{"tokens": "x"}))

	require.EqualValues(t, 2, count(Document{"$or": []Document{{"n": 1}, {"tag": "b"}}}))
	require.EqualValues(t, 1, count(Document{"$and": []Document{{"n": 1}, {"tag": "a"}}}))
	require.EqualValues(t, 1, count(Document{"$nor": []Document{{"n": 1}, {"n": 5}}}))

	// Cross-type numeric equality (int vs float64).
	require.EqualValues(t, 1, count(Document{"n": float64(5)}))
}

func TestMemoryCollection_Updates(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	_, err := coll.InsertMany(ctx, []Document{
		{"k": "a", "n": 1},
		{"k": "a", "n": 2},
	})
	require.NoError(t, err)

	res, err := coll.UpdateOne(ctx, Document{"k": "a"}, Document{"$set": Document{"seen": true}})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Matched)
	require.EqualValues(t, 1, res.Modified)

	res, err = coll.UpdateMany(ctx, Document{"k": "a"}, Document{
		"$inc":   Document{"n": 10},
		"$push":  Document{"log": "bump"},
		"$unset": Document{"seen": ""},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Matched)

	docs, err := coll.Find(ctx, Document{"n": Document{"$gte": 11}}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		require.NotContains(t, d, "seen")
		require.Equal(t, []any{"bump"}, d["log"])
	}
}

func TestMemoryCollection_ReplacementUpdate(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	id, err := coll.InsertOne(ctx, Document{"old": true})
	require.NoError(t, err)

	_, err = coll.UpdateOne(ctx, Document{"_id": id}, Document{"fresh": true})
	require.NoError(t, err)

	doc, err := coll.FindOne(ctx, Document{"_id": id}, nil)
	require.NoError(t, err)
	require.Equal(t, id, doc["_id"], "replacement preserves identity")
	require.NotContains(t, doc, "old")
	require.Equal(t, true, doc["fresh"])
}

func TestMemoryCollection_FindOptions(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	_, err := coll.InsertMany(ctx, []Document{
		{"n": 3, "secret": "x"},
		{"n": 1, "secret": "y"},
		{"n": 2, "secret": "z"},
	})
	require.NoError(t, err)

	docs, err := coll.Find(ctx, nil, &FindOptions{
		Sort:  []SortField{{Field: "n"}},
		Skip:  1,
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.EqualValues(t, 2, docs[0]["n"])

	desc, err := coll.Find(ctx, nil, &FindOptions{Sort: []SortField{{Field: "n", Desc: true}}})
	require.NoError(t, err)
	require.EqualValues(t, 3, desc[0]["n"])

	projected, err := coll.Find(ctx, nil, &FindOptions{Projection: map[string]int{"n": 1}})
	require.NoError(t, err)
	require.Contains(t, projected[0], "n")
	require.Contains(t, projected[0], "_id")
	require.NotContains(t, projected[0], "secret")

	excluded, err := coll.Find(ctx, nil, &FindOptions{Projection: map[string]int{"secret": 0}})
	require.NoError(t, err)
	require.Contains(t, excluded[0], "n")
	require.NotContains(t, excluded[0], "secret")
}

func TestMemoryCollection_ResultsAreCopies(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	id, err := coll.InsertOne(ctx, Document{"nested": Document{"a": 1}})
	require.NoError(t, err)

	doc, err := coll.FindOne(ctx, Document{"_id": id}, nil)
	require.NoError(t, err)
	doc["nested"].(Document)["a"] = 999

	fresh, err := coll.FindOne(ctx, Document{"_id": id}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, fresh["nested"].(Document)["a"])
}

func TestMemoryCollection_Distinct(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	_, err := coll.InsertMany(ctx, []Document{
		{"tag": "a"}, {"tag": "b"}, {"tag": "a"}, {"other": 1},
	})
	require.NoError(t, err)

	values, err := coll.Distinct(ctx, "tag", nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []any{"a", "b"}, values)
}

func TestMemoryCollection_Aggregate(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	_, err := coll.InsertMany(ctx, []Document{
		{"n": 3, "tag": "a"},
		{"n": 1, "tag": "a"},
		{"n": 2, "tag": "b"},
	})
	require.NoError(t, err)

	out, err := coll.Aggregate(ctx, []Document{
		{"$match": Document{"tag": "a"}},
		{"$sort": Document{"n": 1}},
		{"$limit": 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.EqualValues(t, 1, out[0]["n"])

	counted, err := coll.Aggregate(ctx, []Document{
		{"$match": Document{"tag": "a"}},
		{"$count": "total"},
	})
	require.NoError(t, err)
	require.Equal(t, []Document{{"total": int64(2)}}, counted)

	_, err = coll.Aggregate(ctx, []Document{{"$lookup": Document{}}})
	require.Error(t, err)
}

func TestMemoryCollection_IndexErrors(t *testing.T) {
	ctx := context.Background()
	coll := NewMemoryCollection("cards")
	spec := IndexSpec{Name: "email", Key: []IndexKey{{Field: "email", Direction: 1}}}

	require.NoError(t, coll.CreateIndex(ctx, spec))
	require.ErrorIs(t, coll.CreateIndex(ctx, spec), ErrIndexExists)

	require.NoError(t, coll.DropIndex(ctx, "email"))
	require.ErrorIs(t, coll.DropIndex(ctx, "email"), ErrIndexNotFound)
}
