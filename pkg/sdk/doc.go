// Package neardup is an embeddable near-duplicate filter for short text
// records such as exam questions.
//
// Each pair of records is scored by fusing three signals: character edit
// distance, TF-IDF cosine over the batch and embedding cosine from an
// OpenAI-compatible provider. Records are visited in input order and every
// later record whose fused score with a kept record reaches the threshold
// is dropped.
//
// # Texts
//
//	client, _ := neardup.New(ctx, neardup.WithEmbedder(myEmbedder))
//	res, _ := client.Dedup(ctx, texts)
//	for _, d := range res.Duplicates {
//	    fmt.Printf("%d duplicates %d (%.3f)\n", d.Index, d.DuplicateOf, d.Score)
//	}
//
// # Typed records with Go generics
//
//	type Question struct {
//	    ID   string
//	    Text string
//	}
//
//	kept, res, _ := neardup.Filter(ctx, client, questions,
//	    func(q Question) string { return q.Text })
//
// Without an embedder, configure weights that leave the embedding signal out:
//
//	client, _ := neardup.New(ctx, neardup.WithWeights(0.4, 0.6, 0))
package neardup
