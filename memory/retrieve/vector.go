package retrieve

import (
	"context"
	"crypto/sha256"
	"math"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/caihaoran-00/memchr/store"
)

const episodeCollectionName = "episodes"

// vectorIndex wraps an in-process chromem-go collection, keyed per user so
// one user's episodes never influence another's similarity search. There
// is no external embedding API wired into this module (none of the
// retrieved dependencies cover it), so embed uses a deterministic
// hashed-bag-of-words projection: stable, dependency-free, and good enough
// to rank episodes that share vocabulary with the query.
type vectorIndex struct {
	dim        int
	db         *chromem.DB
	collections map[string]*chromem.Collection
}

func newVectorIndex(dim int) *vectorIndex {
	if dim <= 0 {
		dim = 128
	}
	return &vectorIndex{dim: dim, db: chromem.NewDB(), collections: make(map[string]*chromem.Collection)}
}

func (v *vectorIndex) collectionFor(userID string) (*chromem.Collection, error) {
	if c, ok := v.collections[userID]; ok {
		return c, nil
	}
	c, err := v.db.CreateCollection(episodeCollectionName+":"+userID, nil, v.embed)
	if err != nil {
		return nil, err
	}
	v.collections[userID] = c
	return c, nil
}

func (v *vectorIndex) upsert(ctx context.Context, ep store.Episode) error {
	c, err := v.collectionFor(ep.UserID)
	if err != nil {
		return err
	}
	return c.AddDocument(ctx, chromem.Document{
		ID:      ep.EpisodeID,
		Content: ep.Summary,
	})
}

func (r *Retriever) retrieveVector(ctx context.Context, userID, query string, episodes []store.Episode) ([]store.Episode, error) {
	c, err := r.vector.collectionFor(userID)
	if err != nil {
		return nil, err
	}

	nResults := len(episodes)
	if nResults == 0 {
		return nil, nil
	}

	results, err := c.Query(ctx, query, nResults, nil, nil)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]store.Episode, len(episodes))
	for _, ep := range episodes {
		byID[ep.EpisodeID] = ep
	}

	out := make([]store.Episode, 0, len(results))
	for _, res := range results {
		if float64(res.Similarity) < r.similarityThresh {
			continue
		}
		if ep, ok := byID[res.ID]; ok {
			out = append(out, ep)
		}
	}
	return out, nil
}

// embed projects text into a fixed-dimension vector by hashing each token
// into a bucket and accumulating signed counts, then L2-normalizing. Two
// texts sharing vocabulary land closer under cosine similarity.
func (v *vectorIndex) embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, v.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := sha256.Sum256([]byte(tok))
		bucket := (int(h[0])<<8 | int(h[1])) % v.dim
		sign := float32(1)
		if h[2]%2 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
