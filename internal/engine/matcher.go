package engine

import (
	"github.com/curvelab/monbot/internal/domain"
)

// bucketKey groups intents and creation records that are
// indistinguishable on-chain: same side, same integer price.
type bucketKey struct {
	side  domain.Side
	price int64
}

// matchPair is one cloid paired with the creation record the matcher
// attributes to it.
type matchPair struct {
	cloid  string
	record domain.CreationRecord
}

// matchResult is the outcome of pairing one batch's intents against the
// creation records decoded from its receipt.
type matchResult struct {
	pairs []matchPair
	// ambiguous lists every cloid in a bucket whose intent and record
	// counts differ. Nothing in such a bucket is paired.
	ambiguous []string
	// leftover holds creation records from ambiguous or unexpected
	// buckets, reported rather than silently dropped.
	leftover []domain.CreationRecord
}

// matchCreations pairs a batch's limit intents with the receipt's
// creation records. Both sides are partitioned into FIFO queues keyed
// by (side, price), preserving submission and emission order; buckets
// with equal counts zip pairwise, buckets with unequal counts pair
// nothing and report every cloid as ambiguous.
//
// The pairing assumes the chain emits same-bucket creations in
// submission order. That holds today but is not contractual, which is
// why unequal buckets are reported instead of guessed at.
func matchCreations(orders []domain.NormalizedOrder, records []domain.CreationRecord) matchResult {
	var keys []bucketKey
	intentQ := make(map[bucketKey][]string)
	recordQ := make(map[bucketKey][]domain.CreationRecord)

	addKey := func(k bucketKey) {
		if _, seen := intentQ[k]; seen {
			return
		}
		if _, seen := recordQ[k]; seen {
			return
		}
		keys = append(keys, k)
	}

	for _, o := range orders {
		k := bucketKey{side: o.Intent.Side, price: o.Price}
		addKey(k)
		intentQ[k] = append(intentQ[k], o.Intent.Cloid)
	}
	for _, r := range records {
		k := bucketKey{side: r.Side, price: r.Price}
		addKey(k)
		recordQ[k] = append(recordQ[k], r)
	}

	var res matchResult
	for _, k := range keys {
		cloids := intentQ[k]
		recs := recordQ[k]
		if len(cloids) == len(recs) {
			for i, cloid := range cloids {
				res.pairs = append(res.pairs, matchPair{cloid: cloid, record: recs[i]})
			}
			continue
		}
		res.ambiguous = append(res.ambiguous, cloids...)
		res.leftover = append(res.leftover, recs...)
	}
	return res
}
