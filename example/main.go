package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/vecdb/hnsw"
)

func main() {
	idx, err := hnsw.New(hnsw.Config[float32]{
		M:              16,
		EfConstruction: 64,
		MaxLayerCap:    16,
		Metric:         hnsw.DistEuclidean{},
	})
	if err != nil {
		log.Fatalf("failed to create index: %v", err)
	}

	for _, item := range []hnsw.Item[float32]{
		{Key: "1", Vector: []float32{1, 1, 1}},
		{Key: "2", Vector: []float32{1, -1, 0.999}},
		{Key: "3", Vector: []float32{1, 0, -0.5}},
	} {
		if err := idx.Insert(item.Key, item.Vector); err != nil {
			log.Fatalf("failed to insert %s: %v", item.Key, err)
		}
	}

	neighbors, err := idx.Search([]float32{0.5, 0.5, 0.5}, 1, 20)
	if err != nil {
		log.Fatalf("failed to search index: %v", err)
	}
	fmt.Printf("best friend: %s (distance %.4f)\n", neighbors[0].Key, neighbors[0].Distance)

	var wg sync.WaitGroup
	const numOperations = 10

	wg.Add(numOperations)
	for i := 0; i < numOperations; i++ {
		go func(i int) {
			defer wg.Done()
			query := []float32{float32(i) * 0.1, float32(i) * 0.1, float32(i) * 0.1}
			results, err := idx.Search(query, 1, 20)
			if err != nil {
				log.Printf("search error: %v", err)
				return
			}
			fmt.Printf("search %d found: %s\n", i, results[0].Key)
		}(i)
	}

	wg.Add(numOperations)
	for i := 0; i < numOperations; i++ {
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent-%d", i)
			vector := []float32{float32(i), float32(i), float32(i)}
			if err := idx.Insert(key, vector); err != nil {
				log.Printf("insert error: %v", err)
			}
		}(i)
	}

	wg.Wait()
	fmt.Printf("index size after concurrent operations: %d\n", idx.NodeCount())

	batch := make([]hnsw.Item[float32], 5)
	for i := range batch {
		batch[i] = hnsw.Item[float32]{
			Key:    fmt.Sprintf("batch-%d", i),
			Vector: []float32{float32(i) * 0.5, float32(i) * 0.5, float32(i) * 0.5},
		}
	}
	for _, err := range idx.ParallelInsert(batch) {
		if err != nil {
			log.Fatalf("failed to insert batch item: %v", err)
		}
	}

	queries := [][]float32{
		{0.1, 0.1, 0.1},
		{0.2, 0.2, 0.2},
		{0.3, 0.3, 0.3},
	}
	batchResults, errs := idx.ParallelSearch(queries, 2, 20)
	for i, err := range errs {
		if err != nil {
			log.Fatalf("failed to search query %d: %v", i, err)
		}
	}

	for i, results := range batchResults {
		fmt.Printf("batch search %d results: ", i)
		for _, r := range results {
			fmt.Printf("%s ", r.Key)
		}
		fmt.Println()
	}
}
